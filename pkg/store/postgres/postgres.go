// Package postgres implements the store contract over database/sql with the
// pgx driver. All SQL lives here; schema setup is handled by the embedded
// migrations in pkg/database.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lvlup-dev/ascent/pkg/store"
)

// dbtx is the subset of *sql.DB and *sql.Tx the sub-stores run on.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner lets row and rows share the scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

// Store implements store.Store. A tx-bound Store (db nil) runs every
// operation on the enclosing transaction.
type Store struct {
	db     *sql.DB
	q      dbtx
	logger *slog.Logger
}

// New creates the production store over an open connection pool.
func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		q:      db,
		logger: slog.Default().With("component", "store"),
	}
}

func (s *Store) Metrics() store.MetricsStore     { return &metricsStore{s} }
func (s *Store) Tokens() store.TokenStore        { return &tokenStore{s} }
func (s *Store) Scenarios() store.ScenarioStore  { return &scenarioStore{s} }
func (s *Store) Responses() store.ResponseStore  { return &responseStore{s} }
func (s *Store) Scores() store.ScoreStore        { return &scoreStore{s} }
func (s *Store) Knowledge() store.KnowledgeStore { return &knowledgeStore{s} }
func (s *Store) Proposals() store.ProposalStore  { return &proposalStore{s} }
func (s *Store) Cycles() store.CycleStore        { return &cycleStore{s} }
func (s *Store) Events() store.EventStore        { return &eventStore{s} }

// Close closes the underlying pool. No-op on tx-bound stores.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithTx runs fn against a transaction-bound Store. The transaction is
// retried as a whole on connection failures, so fn must confine its side
// effects to store operations. Nested calls join the enclosing transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	return withRetry(ctx, s.logger, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		txStore := &Store{q: tx, logger: s.logger}
		if err := fn(txStore); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return classify(err)
		}
		return nil
	})
}

// inTx runs fn on the enclosing transaction when tx-bound, otherwise inside
// a fresh one. Used by multi-statement single operations (metrics RMW,
// ledger archival).
func (s *Store) inTx(ctx context.Context, fn func(q dbtx) error) error {
	if s.db == nil {
		return fn(s.q)
	}
	return withRetry(ctx, s.logger, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return classify(err)
		}
		return nil
	})
}

// run executes a single-statement operation with the retry budget applied
// for connection failures. Tx-bound stores never retry; the enclosing
// WithTx owns the retry.
func (s *Store) run(ctx context.Context, fn func() error) error {
	if s.db == nil {
		if err := fn(); err != nil {
			return classify(err)
		}
		return nil
	}
	return withRetry(ctx, s.logger, func() error {
		if err := fn(); err != nil {
			return classify(err)
		}
		return nil
	})
}

// retryDelays is the backoff schedule for unavailable-store retries.
var retryDelays = []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, time.Second}

func withRetry(ctx context.Context, logger *slog.Logger, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, store.ErrUnavailable) {
			return err
		}
		if attempt >= len(retryDelays) {
			return err
		}
		logger.Warn("Store unavailable, retrying",
			"attempt", attempt+1,
			"backoff", retryDelays[attempt],
			"error", err)
		timer := time.NewTimer(retryDelays[attempt])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// classify wraps connection-level failures as store.ErrUnavailable so the
// retry loop can distinguish them from business errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions. 57P01-57P03: server shutdown.
		// 53300: too many connections.
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P") || pgErr.Code == "53300" {
			return true
		}
	}
	return false
}
