// Package retention enforces the data retention policy in the background:
// delivered event rows past their TTL are deleted and token ledger months
// before the current one move to the archive table. Both sweeps are
// idempotent and safe to run from multiple pods.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

// sweepTimeout bounds one retention sweep.
const sweepTimeout = 30 * time.Second

// Service runs the periodic retention sweep.
type Service struct {
	st     store.Store
	cfg    config.RetentionConfig
	clk    clock.Clock
	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds the retention service.
func New(st store.Store, cfg config.RetentionConfig, clk clock.Clock) *Service {
	if st == nil {
		panic("retention: store must not be nil")
	}
	if clk == nil {
		panic("retention: clock must not be nil")
	}
	return &Service{
		st:     st,
		cfg:    cfg,
		clk:    clk,
		logger: slog.Default().With("component", "retention"),
		stopCh: make(chan struct{}),
	}
}

// Start launches the background sweep loop. A non-positive interval
// disables it.
func (s *Service) Start() {
	if s.cfg.Interval <= 0 {
		s.logger.Info("Retention disabled", "interval", s.cfg.Interval)
		return
	}
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("Retention started",
		"interval", s.cfg.Interval,
		"event_ttl", s.cfg.EventTTL,
	)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Service) loop() {
	defer s.wg.Done()
	timer := s.clk.NewTimer(s.cfg.Interval)
	defer timer.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C():
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			s.RunOnce(ctx)
			cancel()
			timer.Reset(s.cfg.Interval)
		}
	}
}

// RunOnce performs a single sweep. One task failing does not stop the
// other; failures are logged and retried on the next tick.
func (s *Service) RunOnce(ctx context.Context) {
	s.archiveLedger(ctx)
	s.expireEvents(ctx)
}

// archiveLedger moves ledger rows of past months into the archive. The
// current month stays live so aggregates keep summing cheaply.
func (s *Service) archiveLedger(ctx context.Context) {
	month := models.MonthOf(s.clk.Now())
	moved, err := s.st.Tokens().ArchiveOlderThan(ctx, month)
	if err != nil {
		s.logger.Error("Ledger archive failed", "error", err, "before_month", month)
		return
	}
	if moved > 0 {
		s.logger.Info("Archived past ledger months", "rows", moved, "before_month", month)
	}
}

// expireEvents deletes event rows older than the TTL. Clients that were
// offline longer than the TTL reload state over HTTP instead of replaying.
func (s *Service) expireEvents(ctx context.Context) {
	if s.cfg.EventTTL <= 0 {
		return
	}
	cutoff := s.clk.Now().UTC().Add(-s.cfg.EventTTL)
	deleted, err := s.st.Events().DeleteBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Event cleanup failed", "error", err, "cutoff", cutoff)
		return
	}
	if deleted > 0 {
		s.logger.Info("Deleted expired events", "rows", deleted, "cutoff", cutoff)
	}
}
