// Package memory implements the store contract with in-process maps. It
// backs unit tests and mirrors the postgres transaction semantics: WithTx
// stages every write on a cloned state and swaps it in atomically on
// commit, and notifications raised inside a transaction are held until the
// commit lands.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

// state holds every table. Stored values are never mutated in place; writes
// replace entries with fresh copies, which lets clone share value pointers.
type state struct {
	metrics map[models.AgentKind]*models.AgentMetrics

	ledger       []*models.TokenLedgerEntry
	archive      []*models.TokenLedgerEntry
	nextLedgerID int64

	scenarios     map[string]*models.Scenario
	scenarioOrder []string

	responses map[string]*models.Response

	scores     map[string]*models.Score
	scoreOrder []string

	knowledge map[string]*models.KnowledgePattern

	proposals map[string]*models.Proposal

	cycles []*models.CycleRecord

	events      []*models.Event
	nextEventID int64
}

func newState() *state {
	return &state{
		metrics:   make(map[models.AgentKind]*models.AgentMetrics),
		scenarios: make(map[string]*models.Scenario),
		responses: make(map[string]*models.Response),
		scores:    make(map[string]*models.Score),
		knowledge: make(map[string]*models.KnowledgePattern),
		proposals: make(map[string]*models.Proposal),
	}
}

func (st *state) clone() *state {
	return &state{
		metrics:       maps.Clone(st.metrics),
		ledger:        slices.Clone(st.ledger),
		archive:       slices.Clone(st.archive),
		nextLedgerID:  st.nextLedgerID,
		scenarios:     maps.Clone(st.scenarios),
		scenarioOrder: slices.Clone(st.scenarioOrder),
		responses:     maps.Clone(st.responses),
		scores:        maps.Clone(st.scores),
		scoreOrder:    slices.Clone(st.scoreOrder),
		knowledge:     maps.Clone(st.knowledge),
		proposals:     maps.Clone(st.proposals),
		cycles:        slices.Clone(st.cycles),
		events:        slices.Clone(st.events),
		nextEventID:   st.nextEventID,
	}
}

type notification struct {
	channel string
	payload []byte
}

// Store implements store.Store in memory. The zero value is not usable;
// construct with New.
type Store struct {
	mu sync.Mutex
	st *state

	// tx marks a transaction-bound view. Its state is the staged clone and
	// the enclosing WithTx already holds the parent lock.
	tx      bool
	pending []notification

	onNotify func(channel string, payload []byte)
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{st: newState()}
}

// SetNotifyHandler wires the in-process notification sink. The handler runs
// outside the store lock and must be set before concurrent use.
func (s *Store) SetNotifyHandler(fn func(channel string, payload []byte)) {
	s.mu.Lock()
	s.onNotify = fn
	s.mu.Unlock()
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

// Close is a no-op; it exists to satisfy the contract.
func (s *Store) Close() error { return nil }

// WithTx stages fn's writes on a cloned state and swaps the clone in only
// when fn succeeds. Nested calls join the enclosing transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if s.tx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	staged := &Store{st: s.st.clone(), tx: true, onNotify: s.onNotify}
	if err := fn(staged); err != nil {
		s.mu.Unlock()
		return err
	}
	s.st = staged.st
	fired := staged.pending
	handler := s.onNotify
	s.mu.Unlock()

	if handler != nil {
		for _, n := range fired {
			handler(n.channel, n.payload)
		}
	}
	return nil
}

// locked runs fn under the store lock; transaction-bound views run bare
// because the enclosing WithTx holds the parent lock for their lifetime.
func (s *Store) locked(fn func(st *state) error) error {
	if s.tx {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}
