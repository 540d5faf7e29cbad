package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/models"
)

// Factory builds the fetch adapter for a registered URL. Swapped in tests.
type Factory func(baseURL string) Source

// entry pairs a source with its registry bookkeeping.
type entry struct {
	src  Source
	info models.SourceInfo
}

// Registry is the runtime set of knowledge sources. Seeds come from
// configuration; Add/Remove serve the API. Fetch fans a query out to every
// trusted, available source and merges the results.
type Registry struct {
	allowedHosts []string
	factory      Factory
	clk          clock.Clock
	logger       *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates a registry seeded from configuration. Invalid seeds
// are logged and skipped rather than failing startup.
func NewRegistry(cfg config.SourcesConfig, clk clock.Clock, factory Factory) *Registry {
	if factory == nil {
		cache := NewCache(cfg.CacheTTL, clk)
		timeout := cfg.FetchTimeout
		factory = func(baseURL string) Source {
			return NewHTTPSource(baseURL, timeout, cache)
		}
	}
	r := &Registry{
		allowedHosts: cfg.AllowedHosts,
		factory:      factory,
		clk:          clk,
		logger:       slog.Default().With("component", "source"),
		entries:      make(map[string]*entry),
	}
	for _, seed := range cfg.Seeds {
		if _, err := r.Add(seed.URL, seed.Trusted); err != nil {
			r.logger.Warn("Skipping invalid source seed", "url", seed.URL, "error", err)
		}
	}
	return r
}

// Add registers a source. The URL must parse, use http or https, and sit
// inside the host allow-list when one is configured. Sources are identified
// by URL: adding one that already exists returns the existing entry
// unchanged.
func (r *Registry) Add(rawURL string, trusted bool) (*models.SourceInfo, error) {
	if err := validateSourceURL(rawURL, r.allowedHosts); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[rawURL]; ok {
		info := existing.info
		return &info, nil
	}
	e := &entry{
		src: r.factory(rawURL),
		info: models.SourceInfo{
			URL:     rawURL,
			Trusted: trusted,
			// Optimistic until the first probe says otherwise.
			Available: true,
			AddedAt:   r.clk.Now().UTC(),
		},
	}
	r.entries[rawURL] = e
	r.logger.Info("Source registered", "url", rawURL, "trusted", trusted)
	info := e.info
	return &info, nil
}

// Remove unregisters a source.
func (r *Registry) Remove(rawURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[rawURL]; !exists {
		return fmt.Errorf("%w: %s", ErrNotRegistered, rawURL)
	}
	delete(r.entries, rawURL)
	r.logger.Info("Source removed", "url", rawURL)
	return nil
}

// List returns the registered sources ordered by URL.
func (r *Registry) List() []models.SourceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.SourceInfo, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Fetch queries every trusted, available source and merges their documents.
// Individual source failures are logged and skipped; the merged result from
// the healthy sources still flows.
func (r *Registry) Fetch(ctx context.Context, query string) ([]models.Document, error) {
	r.mu.RLock()
	var targets []Source
	for _, e := range r.entries {
		if e.info.Trusted && e.info.Available {
			targets = append(targets, e.src)
		}
	}
	r.mu.RUnlock()

	var merged []models.Document
	for _, src := range targets {
		docs, err := src.Fetch(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return merged, ctx.Err()
			}
			r.logger.Warn("Source fetch failed", "url", src.URL(), "error", err)
			continue
		}
		merged = append(merged, docs...)
	}
	return merged, nil
}

// probeTarget is one source snapshot handed to the health monitor.
type probeTarget struct {
	url       string
	src       Source
	available bool
}

func (r *Registry) probeTargets() []probeTarget {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]probeTarget, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, probeTarget{url: e.info.URL, src: e.src, available: e.info.Available})
	}
	return out
}

// setAvailability records a probe result. Sources removed between the probe
// snapshot and the result landing are ignored.
func (r *Registry) setAvailability(rawURL string, available bool, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[rawURL]
	if !ok {
		return
	}
	e.info.Available = available
	checked := at.UTC()
	e.info.CheckedAt = &checked
}
