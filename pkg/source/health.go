package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
)

// Monitor periodically probes registered sources and flips their
// availability in the registry. Unavailable sources drop out of Fetch until
// a later probe succeeds.
type Monitor struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	clk      clock.Clock
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a health monitor over the registry. A zero
// health_interval disables it.
func NewMonitor(registry *Registry, cfg config.SourcesConfig, clk clock.Clock) *Monitor {
	return &Monitor{
		registry: registry,
		interval: cfg.HealthInterval,
		timeout:  cfg.FetchTimeout,
		clk:      clk,
		logger:   slog.Default().With("component", "source"),
	}
}

// Start launches the probe loop. Calling Start on a running or disabled
// monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	if m.cancel != nil || m.interval <= 0 {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx)
	m.logger.Info("Source health monitor started", "interval", m.interval)
}

// Stop shuts the monitor down and waits for the loop to exit. After Stop
// returns, Start may be called again.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
	m.logger.Info("Source health monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	// First sweep immediately so availability is fresh shortly after boot.
	m.checkAll(ctx)

	timer := m.clk.NewTimer(m.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			m.checkAll(ctx)
			timer.Reset(m.interval)
		}
	}
}

func (m *Monitor) checkAll(ctx context.Context) {
	for _, target := range m.registry.probeTargets() {
		if ctx.Err() != nil {
			return
		}
		err := m.probe(ctx, target.src)
		available := err == nil
		m.registry.setAvailability(target.url, available, m.clk.Now())
		switch {
		case !available && target.available:
			m.logger.Warn("Source became unavailable", "url", target.url, "error", err)
		case available && !target.available:
			m.logger.Info("Source recovered", "url", target.url)
		}
	}
}

// probe prefers the source's cheap reachability check and falls back to an
// empty-query fetch for adapters without one.
func (m *Monitor) probe(ctx context.Context, src Source) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if p, ok := src.(Prober); ok {
		return p.Probe(ctx)
	}
	_, err := src.Fetch(ctx, "")
	return err
}
