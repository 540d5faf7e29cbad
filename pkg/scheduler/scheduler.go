// Package scheduler drives the four agents on staggered cadences behind a
// shared resource gate. One supervisor owns one worker goroutine per kind;
// workers compute their next due time from durable metrics so restarts
// never double-run a cadence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/custody"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

// ErrResourcesExhausted is returned when the resource gate denies a
// manually requested cycle.
var ErrResourcesExhausted = errors.New("resources exhausted, cycle denied")

// defaultRetryInterval is the re-check delay when config carries none.
const defaultRetryInterval = 5 * time.Minute

// CycleRunner is the slice of the custody engine the scheduler drives.
type CycleRunner interface {
	RunCycle(ctx context.Context, kind models.AgentKind, opts custody.RunOptions) (*custody.CycleSummary, error)
	RecordSkippedCycle(ctx context.Context, kind models.AgentKind, outcome models.CycleOutcome, note string) (*custody.CycleSummary, error)
	InFlight(kind models.AgentKind) bool
}

// Scheduler owns the per-agent cadence workers and the manual trigger
// entry points the API uses.
type Scheduler struct {
	engine CycleRunner
	st     store.Store
	gate   *Gate
	cfg    *config.Config
	clk    clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	rootCtx context.Context
	wg      sync.WaitGroup
}

// New builds the scheduler. Start must be called before it does anything.
func New(engine CycleRunner, st store.Store, gate *Gate, cfg *config.Config, clk clock.Clock) *Scheduler {
	return &Scheduler{
		engine: engine,
		st:     st,
		gate:   gate,
		cfg:    cfg,
		clk:    clk,
		logger: slog.Default().With("component", "scheduler"),
	}
}

// Start launches the gate and one worker per agent kind. Calling Start on
// a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.rootCtx, s.cancel = ctx, cancel

	s.gate.Start()
	for _, kind := range models.AllAgentKinds() {
		s.wg.Add(1)
		go s.worker(ctx, kind)
	}
	s.logger.Info("scheduler started", "workers", len(models.AllAgentKinds()))
}

// Stop cancels the root context and waits for workers and the gate.
// Workers observe cancellation at every suspension point, so Stop returns
// promptly even mid-wait.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.gate.Stop()
	s.logger.Info("scheduler stopped")
}

// Trigger starts a manual cycle for kind and returns its pre-allocated
// cycle ID without waiting for the run. Manual triggers bypass cadence
// and pause, never the resource gate or the one-in-flight rule.
func (s *Scheduler) Trigger(ctx context.Context, kind models.AgentKind, opts custody.RunOptions) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("unknown agent kind %q", kind)
	}
	if !s.gate.Allow() {
		return "", ErrResourcesExhausted
	}
	if s.engine.InFlight(kind) {
		return "", fmt.Errorf("%w: %s", custody.ErrCycleInFlight, kind)
	}

	opts.Trigger = custody.TriggerManual
	if opts.CycleID == "" {
		opts.CycleID = uuid.New().String()
	}

	// Reserve a WaitGroup slot under the same lock that guards Stop, so a
	// concurrent shutdown either sees this run or refuses it, never races
	// the Wait.
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return "", errors.New("scheduler not started")
	}
	runCtx := s.rootCtx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		summary, err := s.engine.RunCycle(runCtx, kind, opts)
		if err != nil {
			s.logger.Warn("Manual cycle did not run",
				"agent_kind", kind, "cycle_id", opts.CycleID, "error", err)
			return
		}
		s.logger.Info("Manual cycle finished",
			"agent_kind", kind, "cycle_id", summary.CycleID, "outcome", summary.Outcome)
	}()
	return opts.CycleID, nil
}

// RunCustodyTest runs one manual cycle synchronously and returns its
// summary. The caller's context bounds the whole run.
func (s *Scheduler) RunCustodyTest(ctx context.Context, kind models.AgentKind, category models.Category, complexity models.Complexity) (*custody.CycleSummary, error) {
	if !s.gate.Allow() {
		return nil, ErrResourcesExhausted
	}
	return s.engine.RunCycle(ctx, kind, custody.RunOptions{
		Trigger:    custody.TriggerManual,
		Category:   category,
		Complexity: complexity,
	})
}

// Pause suspends scheduled cycles for kind. Manual triggers still work.
func (s *Scheduler) Pause(ctx context.Context, kind models.AgentKind) error {
	return s.setStatus(ctx, kind, models.AgentStatusPaused)
}

// Resume re-enables scheduled cycles for kind.
func (s *Scheduler) Resume(ctx context.Context, kind models.AgentKind) error {
	return s.setStatus(ctx, kind, models.AgentStatusActive)
}

func (s *Scheduler) setStatus(ctx context.Context, kind models.AgentKind, status models.AgentStatus) error {
	now := s.clk.Now()
	// Ensure first: pausing an agent that has never run must still stick.
	if _, err := s.st.Metrics().Ensure(ctx, kind, now); err != nil {
		return err
	}
	return s.st.Metrics().SetStatus(ctx, kind, status, now)
}

// worker runs one agent's cadence loop until the root context ends.
func (s *Scheduler) worker(ctx context.Context, kind models.AgentKind) {
	defer s.wg.Done()
	logger := s.logger.With("agent_kind", kind)

	cadence := s.cfg.Cadence.Interval(string(kind))
	if cadence <= 0 {
		logger.Info("worker disabled, no cadence configured")
		return
	}
	if delay := s.cfg.Cadence.InitialDelay(string(kind)); delay > 0 {
		if s.clk.Sleep(ctx, delay) != nil {
			return
		}
	}
	logger.Info("worker running", "cadence", cadence)

	var lastAttempt time.Time
	for ctx.Err() == nil {
		wait, paused, err := s.nextWait(ctx, kind, cadence, lastAttempt)
		switch {
		case err != nil:
			logger.Warn("Metrics read failed, retrying", "error", err)
			if s.clk.Sleep(ctx, s.retryInterval()) != nil {
				return
			}
		case paused:
			if s.clk.Sleep(ctx, s.retryInterval()) != nil {
				return
			}
		case wait > 0:
			// Sleep then recompute: a manual cycle may have moved last_run.
			if s.clk.Sleep(ctx, wait) != nil {
				return
			}
		case !s.gate.Allow():
			s.recordGateSkip(ctx, kind)
			if s.clk.Sleep(ctx, s.retryInterval()) != nil {
				return
			}
		default:
			s.runScheduled(ctx, kind, logger)
			lastAttempt = s.clk.Now()
		}
	}
}

func (s *Scheduler) runScheduled(ctx context.Context, kind models.AgentKind, logger *slog.Logger) {
	summary, err := s.engine.RunCycle(ctx, kind, custody.RunOptions{Trigger: custody.TriggerScheduled})
	if err != nil {
		if errors.Is(err, custody.ErrCycleInFlight) {
			logger.Debug("Tick lost to a manual cycle")
			return
		}
		if ctx.Err() != nil {
			return
		}
		logger.Error("Scheduled cycle refused", "error", err)
		return
	}
	logger.Info("Scheduled cycle finished",
		"cycle_id", summary.CycleID,
		"outcome", summary.Outcome,
		"overall", summary.Overall,
		"level", summary.Level)
}

func (s *Scheduler) recordGateSkip(ctx context.Context, kind models.AgentKind) {
	note := "resource gate denied tick"
	if snap := s.gate.Snapshot(); snap != nil {
		note = fmt.Sprintf("resource gate denied tick: cpu %.1f%%, mem %.1f%%", snap.CPUPct, snap.MemPct)
	}
	if _, err := s.engine.RecordSkippedCycle(ctx, kind, models.CycleSkippedResources, note); err != nil && ctx.Err() == nil {
		s.logger.Warn("Recording skipped cycle failed", "agent_kind", kind, "error", err)
	}
}

// nextWait computes how long the worker should sleep before its next due
// tick. The durable last_cycle_at wins over the in-memory last attempt,
// so manual runs push the cadence out and restarts pick up where the
// store says we are.
func (s *Scheduler) nextWait(ctx context.Context, kind models.AgentKind, cadence time.Duration, lastAttempt time.Time) (time.Duration, bool, error) {
	var last time.Time
	paused := false

	m, err := s.st.Metrics().Get(ctx, kind)
	switch {
	case err == nil:
		paused = m.Status == models.AgentStatusPaused
		if m.LastCycleAt != nil {
			last = *m.LastCycleAt
		}
	case errors.Is(err, store.ErrNotFound):
		// Never run; due immediately.
	default:
		return 0, false, err
	}

	if lastAttempt.After(last) {
		last = lastAttempt
	}
	if last.IsZero() {
		return 0, paused, nil
	}

	wait := last.Add(cadence).Sub(s.clk.Now())
	if wait < 0 {
		wait = 0
	}
	return wait, paused, nil
}

func (s *Scheduler) retryInterval() time.Duration {
	if s.cfg.Resource.RetryInterval > 0 {
		return s.cfg.Resource.RetryInterval
	}
	return defaultRetryInterval
}
