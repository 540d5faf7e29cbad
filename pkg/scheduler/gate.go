package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
)

// sampleTimeout bounds one CPU/memory sample.
const sampleTimeout = 10 * time.Second

// Sample is one point-in-time resource reading.
type Sample struct {
	CPUPct float64
	MemPct float64
	At     time.Time
}

// Sampler produces resource samples. The default reads the host via
// gopsutil; tests inject their own.
type Sampler func(ctx context.Context) (Sample, error)

// Gate admits work while the host has headroom. It samples in the
// background and answers Allow from the latest snapshot, so the decision
// never blocks on a measurement.
type Gate struct {
	cfg     config.ResourceConfig
	clk     clock.Clock
	logger  *slog.Logger
	sampler Sampler

	snapshot atomic.Pointer[Sample]

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// GateOption customizes a Gate.
type GateOption func(*Gate)

// WithSampler replaces the host sampler.
func WithSampler(sampler Sampler) GateOption {
	return func(g *Gate) { g.sampler = sampler }
}

// NewGate builds a resource gate from the configured thresholds.
func NewGate(cfg config.ResourceConfig, clk clock.Clock, opts ...GateOption) *Gate {
	g := &Gate{
		cfg:    cfg,
		clk:    clk,
		logger: slog.Default().With("component", "resource_gate"),
		stopCh: make(chan struct{}),
	}
	g.sampler = g.hostSample
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start takes an immediate first sample, then keeps sampling on the
// configured interval until Stop.
func (g *Gate) Start() {
	g.sample()
	if g.cfg.SampleInterval <= 0 {
		return
	}
	g.wg.Add(1)
	go g.loop()
}

// Stop halts background sampling. Allow keeps answering from the last
// snapshot.
func (g *Gate) Stop() {
	g.stopOnce.Do(func() { close(g.stopCh) })
	g.wg.Wait()
}

// Allow reports whether both CPU and memory sit at or under their
// thresholds. Readings exactly at a threshold are allowed. Before the
// first successful sample the gate fails open: an unmeasured host never
// stalls the platform.
func (g *Gate) Allow() bool {
	s := g.snapshot.Load()
	if s == nil {
		return true
	}
	return s.CPUPct <= g.cfg.CPUMaxPct && s.MemPct <= g.cfg.MemMaxPct
}

// Snapshot returns the latest sample, nil before the first success.
func (g *Gate) Snapshot() *Sample {
	return g.snapshot.Load()
}

func (g *Gate) loop() {
	defer g.wg.Done()
	timer := g.clk.NewTimer(g.cfg.SampleInterval)
	defer timer.Stop()
	for {
		select {
		case <-g.stopCh:
			return
		case <-timer.C():
			g.sample()
			timer.Reset(g.cfg.SampleInterval)
		}
	}
}

func (g *Gate) sample() {
	ctx, cancel := context.WithTimeout(context.Background(), sampleTimeout)
	defer cancel()

	s, err := g.sampler(ctx)
	if err != nil {
		g.logger.Warn("Resource sample failed", "error", err)
		return
	}
	s.At = g.clk.Now()
	g.snapshot.Store(&s)
}

// hostSample reads the host through gopsutil. The zero CPU interval makes
// the call non-blocking: it measures since the previous invocation.
func (g *Gate) hostSample(ctx context.Context) (Sample, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Sample{}, fmt.Errorf("cpu percent: %w", err)
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("virtual memory: %w", err)
	}

	return Sample{CPUPct: cpuPct, MemPct: vm.UsedPercent}, nil
}
