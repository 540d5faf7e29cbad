// Package store defines the persistence contract, grouped by aggregate.
// The postgres subpackage is the production backend; the memory subpackage
// backs unit tests.
package store

import (
	"context"
	"time"

	"github.com/lvlup-dev/ascent/pkg/models"
)

// Store is the umbrella over all aggregate stores. WithTx runs fn against a
// transaction-bound Store; every write inside commits or rolls back as one
// unit. Closures passed to WithTx may be re-run after transient connection
// failures and must not carry side effects outside the transaction.
type Store interface {
	Metrics() MetricsStore
	Tokens() TokenStore
	Scenarios() ScenarioStore
	Responses() ResponseStore
	Scores() ScoreStore
	Knowledge() KnowledgeStore
	Proposals() ProposalStore
	Cycles() CycleStore
	Events() EventStore

	WithTx(ctx context.Context, fn func(Store) error) error
	Close() error
}

// MetricsReader is the read-only view handed to components that must never
// write agent metrics.
type MetricsReader interface {
	Get(ctx context.Context, kind models.AgentKind) (*models.AgentMetrics, error)
	All(ctx context.Context) ([]*models.AgentMetrics, error)
}

// MetricsStore persists the per-agent progression rows. Update is a
// linearizable read-modify-write per kind; only the custody engine may call
// it for progression fields. SetStatus touches status/updated_at only.
type MetricsStore interface {
	MetricsReader
	// Ensure creates the initial row for kind when absent and returns it.
	Ensure(ctx context.Context, kind models.AgentKind, now time.Time) (*models.AgentMetrics, error)
	// Update applies fn to the current row under a row lock and persists the
	// result. The row is created first when absent.
	Update(ctx context.Context, kind models.AgentKind, now time.Time, fn func(*models.AgentMetrics) error) (*models.AgentMetrics, error)
	// SetStatus flips the scheduling status (pause/resume).
	SetStatus(ctx context.Context, kind models.AgentKind, status models.AgentStatus, now time.Time) error
	// Reset zeroes progression for kind. Admin only; callers must record a
	// reset event alongside.
	Reset(ctx context.Context, kind models.AgentKind, now time.Time) error
}

// UsageFilter narrows token usage queries. Zero values mean "any".
type UsageFilter struct {
	AgentKind models.AgentKind
	Provider  models.Provider
	Month     string
}

// TokenStore persists the append-only spend ledger. Aggregates are derived
// by summation, keyed on month, so rollover needs no timer.
type TokenStore interface {
	Append(ctx context.Context, entry *models.TokenLedgerEntry) error
	Aggregate(ctx context.Context, kind models.AgentKind, provider models.Provider, month string) (*models.TokenAggregate, error)
	Usage(ctx context.Context, filter UsageFilter) ([]*models.TokenAggregate, error)
	// ArchiveMonth moves all rows of the given month into the archive table,
	// returning the number of rows moved.
	ArchiveMonth(ctx context.Context, month string) (int64, error)
	// ArchiveOlderThan archives rows of months strictly before the given
	// YYYY-MM key.
	ArchiveOlderThan(ctx context.Context, month string) (int64, error)
}

// ScenarioStore persists generated test scenarios.
type ScenarioStore interface {
	Insert(ctx context.Context, scenario *models.Scenario) error
	Get(ctx context.Context, id string) (*models.Scenario, error)
	// Recent returns the newest scenarios for kind, newest first.
	Recent(ctx context.Context, kind models.AgentKind, limit int) ([]*models.Scenario, error)
	// RecentFingerprints returns the fingerprints of the last n scenarios
	// generated for kind, newest first.
	RecentFingerprints(ctx context.Context, kind models.AgentKind, n int) ([]string, error)
}

// ResponseStore persists agent responses.
type ResponseStore interface {
	Insert(ctx context.Context, response *models.Response) error
	Get(ctx context.Context, id string) (*models.Response, error)
}

// ScoreStore persists graded outcomes.
type ScoreStore interface {
	Insert(ctx context.Context, score *models.Score) error
	// Recent returns the newest scores for an agent, newest first.
	Recent(ctx context.Context, kind models.AgentKind, limit int) ([]*models.Score, error)
	// Analytics aggregates pass rates and score distributions.
	Analytics(ctx context.Context) (*models.CustodyAnalytics, error)
}

// KnowledgeFilter narrows pattern queries. Nil fields mean "any".
type KnowledgeFilter struct {
	Owner *models.AgentKind
	Label *models.PatternLabel
	Limit int
}

// KnowledgeStore persists labeled behavior patterns. Rows are append-only
// except for effectiveness, which the learning loop adjusts.
type KnowledgeStore interface {
	Insert(ctx context.Context, pattern *models.KnowledgePattern) error
	Get(ctx context.Context, id string) (*models.KnowledgePattern, error)
	// Query returns patterns ordered by effectiveness desc, created_at desc.
	Query(ctx context.Context, filter KnowledgeFilter) ([]*models.KnowledgePattern, error)
	UpdateEffectiveness(ctx context.Context, id string, effectiveness float64) error
}

// ProposalStore persists Guardian proposals with guarded state transitions.
type ProposalStore interface {
	Insert(ctx context.Context, proposal *models.Proposal) error
	Get(ctx context.Context, id string) (*models.Proposal, error)
	// Transition moves id from -> to, recording the decider and optional
	// execution result. Returns ErrInvalidTransition when the row is no
	// longer in the from state.
	Transition(ctx context.Context, id string, from, to models.ProposalStatus, decidedBy string, result []models.ActionResult, now time.Time) (*models.Proposal, error)
	// List returns proposals, newest first, optionally filtered by status.
	List(ctx context.Context, status *models.ProposalStatus) ([]*models.Proposal, error)
}

// CycleStore persists the append-only cycle history.
type CycleStore interface {
	Insert(ctx context.Context, record *models.CycleRecord) error
	// Recent returns the newest records for an agent, newest first.
	Recent(ctx context.Context, kind models.AgentKind, limit int) ([]*models.CycleRecord, error)
}

// EventStore persists broadcast events for NOTIFY fan-out and WS catch-up.
type EventStore interface {
	// Insert appends an event and returns its assigned ID.
	Insert(ctx context.Context, channel string, payload []byte) (int64, error)
	// Notify fans the payload out to listeners on channel. On Postgres this
	// is pg_notify, delivered on commit when called inside a transaction.
	Notify(ctx context.Context, channel string, payload []byte) error
	// ListAfter returns up to limit events on channel with ID > afterID,
	// oldest first.
	ListAfter(ctx context.Context, channel string, afterID int64, limit int) ([]*models.Event, error)
	// DeleteBefore removes events created before the cutoff, returning the
	// number deleted.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
