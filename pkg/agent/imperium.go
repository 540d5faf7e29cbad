package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/models"
)

// CodebaseSnapshot is the shape of the codebase Imperium reviews each
// cycle. Hotspots are paths the provider flags as needing attention.
type CodebaseSnapshot struct {
	Packages int
	Files    int
	Lines    int
	Hotspots []string
}

// SnapshotProvider supplies the snapshot Imperium's review runs over.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*CodebaseSnapshot, error)
}

// DocFetcher pulls reference documents for a review topic. The source
// registry satisfies it; a nil fetcher skips enrichment.
type DocFetcher interface {
	Fetch(ctx context.Context, query string) ([]models.Document, error)
}

// Imperium is the architect agent: its domain task reviews the current
// codebase snapshot and summarizes findings into the cycle note.
type Imperium struct {
	base
	snapshots SnapshotProvider
	docs      DocFetcher
}

// ImperiumOption customizes an Imperium runner.
type ImperiumOption func(*Imperium)

// WithDocFetcher lets the review consult registered knowledge sources.
func WithDocFetcher(docs DocFetcher) ImperiumOption {
	return func(i *Imperium) { i.docs = docs }
}

// NewImperium builds the architect runner. A nil provider falls back to
// the built-in static snapshot.
func NewImperium(gateway Gateway, clk clock.Clock, snapshots SnapshotProvider, opts ...ImperiumOption) *Imperium {
	if snapshots == nil {
		snapshots = defaultSnapshotProvider()
	}
	i := &Imperium{
		base:      newBase(models.AgentImperium, gateway, clk),
		snapshots: snapshots,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// RunDomainTask performs one code review pass: snapshot, flag hotspots,
// optionally pull reference docs for the worst one.
func (i *Imperium) RunDomainTask(ctx context.Context) (*models.DomainResult, error) {
	snapshot, err := i.snapshots.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("imperium snapshot: %w", err)
	}

	consulted := 0
	if i.docs != nil && len(snapshot.Hotspots) > 0 {
		docs, err := i.docs.Fetch(ctx, snapshot.Hotspots[0])
		if err != nil {
			// Sources are advisory; the review stands without them.
			i.logger.Warn("Reference fetch failed", "query", snapshot.Hotspots[0], "error", err)
		} else {
			consulted = len(docs)
		}
	}

	summary := fmt.Sprintf("code review: %d packages, %d files", snapshot.Packages, snapshot.Files)
	if len(snapshot.Hotspots) > 0 {
		summary += fmt.Sprintf(", %d hotspots (%s)", len(snapshot.Hotspots), strings.Join(snapshot.Hotspots, ", "))
	}
	if consulted > 0 {
		summary += fmt.Sprintf(", %d reference docs consulted", consulted)
	}

	return &models.DomainResult{
		Summary: summary,
		Details: map[string]any{
			"packages": snapshot.Packages,
			"files":    snapshot.Files,
			"lines":    snapshot.Lines,
			"hotspots": snapshot.Hotspots,
		},
	}, nil
}
