// Package proposal runs the human-approval workflow for Guardian's healing
// proposals: file pending, decide, execute at most once. Execution applies
// allow-listed actions only; nothing here shells out.
package proposal

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
	"github.com/lvlup-dev/ascent/pkg/events"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

var (
	// ErrInvalidDraft is returned when a proposal draft is missing required
	// fields or carries an unknown risk grade.
	ErrInvalidDraft = errors.New("invalid proposal draft")

	// ErrNotEligible is returned when Guardian's recent scoring form does
	// not permit raising proposals.
	ErrNotEligible = errors.New("agent not eligible to raise proposals")

	// ErrAlreadyExecuted is returned when Execute finds the proposal in its
	// terminal executed state. Execution is at-most-once.
	ErrAlreadyExecuted = errors.New("proposal already executed")

	// ErrExecutionInFlight is returned when a second Execute arrives while
	// the first is still applying actions.
	ErrExecutionInFlight = errors.New("proposal execution already in flight")
)

// executedBy is the decider recorded on execution transitions; the
// approve/reject transitions carry the human approver instead.
const executedBy = "executor"

const defaultExecuteTimeout = 120 * time.Second

// Gate answers whether an agent's recent form permits raising proposals.
// The custody eligibility checker satisfies it.
type Gate interface {
	ProposalPermitted(ctx context.Context, kind models.AgentKind) (bool, error)
}

// Publisher broadcasts proposal lifecycle events. Publishing is best-effort;
// failures are logged, never fatal to the workflow.
type Publisher interface {
	PublishProposalCreated(ctx context.Context, payload events.ProposalCreatedPayload) error
	PublishProposalDecided(ctx context.Context, payload events.ProposalDecidedPayload) error
	PublishProposalExecuted(ctx context.Context, payload events.ProposalExecutedPayload) error
}

// Executor dispatches an approved proposal's actions, one result per action.
// Per-action failures ride the results; the error return means the run was
// cut short and the results are partial.
type Executor interface {
	Execute(ctx context.Context, actions []models.Action) ([]models.ActionResult, error)
}

// Service owns the proposal state machine. It is the single gatekeeper for
// creation (Guardian eligibility) and the single executor entry point.
type Service struct {
	st        store.Store
	gate      Gate
	publisher Publisher
	executor  Executor
	notifier  *Notifier
	cfg       *config.Config
	clk       clock.Clock
	logger    *slog.Logger

	mu        sync.Mutex
	executing map[string]bool
}

// Option customizes the service.
type Option func(*Service)

// WithNotifier attaches a Slack notifier. A nil notifier is fine; every
// notification becomes a no-op.
func WithNotifier(n *Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates the proposal workflow service.
func NewService(st store.Store, gate Gate, publisher Publisher, executor Executor, cfg *config.Config, clk clock.Clock, opts ...Option) *Service {
	if st == nil {
		panic("proposal: store must not be nil")
	}
	if gate == nil {
		panic("proposal: gate must not be nil")
	}
	if publisher == nil {
		panic("proposal: publisher must not be nil")
	}
	if executor == nil {
		panic("proposal: executor must not be nil")
	}
	s := &Service{
		st:        st,
		gate:      gate,
		publisher: publisher,
		executor:  executor,
		cfg:       cfg,
		clk:       clk,
		logger:    slog.Default().With("component", "proposal"),
		executing: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Propose files a pending proposal after checking Guardian's recent form.
// It satisfies the agent package's proposal sink.
func (s *Service) Propose(ctx context.Context, draft models.ProposalDraft) (*models.Proposal, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	allowed, err := s.gate.ProposalPermitted(ctx, models.AgentGuardian)
	if err != nil {
		return nil, fmt.Errorf("checking proposal eligibility: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s", ErrNotEligible, models.AgentGuardian)
	}

	now := s.clk.Now().UTC()
	p := &models.Proposal{
		ID:          uuid.New().String(),
		Kind:        models.ProposalKindSystemHealing,
		Title:       draft.Title,
		Description: draft.Description,
		Actions:     append([]models.Action(nil), draft.Actions...),
		Risk:        draft.Risk,
		Status:      models.ProposalPending,
		CreatedAt:   now,
	}
	if err := s.st.Proposals().Insert(ctx, p); err != nil {
		return nil, fmt.Errorf("inserting proposal: %w", err)
	}

	if err := s.publisher.PublishProposalCreated(ctx, events.ProposalCreatedPayload{
		ProposalID: p.ID,
		Title:      p.Title,
		Risk:       p.Risk,
		At:         now,
	}); err != nil {
		s.logger.Warn("Failed to publish proposal.created", "proposal_id", p.ID, "error", err)
	}
	s.notifier.ProposalCreated(ctx, p)

	s.logger.Info("Proposal filed", "proposal_id", p.ID, "risk", p.Risk, "actions", len(p.Actions))
	return p, nil
}

// Approve moves a pending proposal to approved.
func (s *Service) Approve(ctx context.Context, id, approver string) (*models.Proposal, error) {
	return s.decide(ctx, id, models.ProposalApproved, approver, "")
}

// Reject moves a pending proposal to rejected. The reason rides the decision
// event and the notification; the row itself carries only who and when.
func (s *Service) Reject(ctx context.Context, id, approver, reason string) (*models.Proposal, error) {
	return s.decide(ctx, id, models.ProposalRejected, approver, reason)
}

func (s *Service) decide(ctx context.Context, id string, to models.ProposalStatus, decidedBy, reason string) (*models.Proposal, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: proposal id required", ErrInvalidDraft)
	}
	if decidedBy == "" {
		return nil, fmt.Errorf("%w: decider required", ErrInvalidDraft)
	}

	now := s.clk.Now().UTC()
	p, err := s.st.Proposals().Transition(ctx, id, models.ProposalPending, to, decidedBy, nil, now)
	if err != nil {
		return nil, fmt.Errorf("deciding proposal %s: %w", id, err)
	}

	if err := s.publisher.PublishProposalDecided(ctx, events.ProposalDecidedPayload{
		ProposalID: id,
		Status:     to,
		DecidedBy:  decidedBy,
		Reason:     reason,
		At:         now,
	}); err != nil {
		s.logger.Warn("Failed to publish proposal.decided", "proposal_id", id, "error", err)
	}
	s.notifier.ProposalDecided(ctx, p, reason)

	s.logger.Info("Proposal decided", "proposal_id", id, "status", to, "decided_by", decidedBy)
	return p, nil
}

// Execute applies an approved proposal's actions at most once. The proposal
// lands in executed when every action succeeds, failed otherwise; either way
// the per-action results are recorded on the row.
func (s *Service) Execute(ctx context.Context, id string) (*models.Proposal, error) {
	if err := s.beginExecution(id); err != nil {
		return nil, err
	}
	defer s.endExecution(id)

	p, err := s.st.Proposals().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading proposal %s: %w", id, err)
	}
	switch p.Status {
	case models.ProposalApproved:
	case models.ProposalExecuted:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExecuted, id)
	default:
		return nil, fmt.Errorf("%w: proposal %s is %s, expected %s",
			store.ErrInvalidTransition, id, p.Status, models.ProposalApproved)
	}

	execCtx, cancel := context.WithTimeout(ctx, s.executeTimeout())
	defer cancel()

	results, execErr := s.executor.Execute(execCtx, p.Actions)
	allOK := execErr == nil && len(results) == len(p.Actions)
	if execErr != nil {
		s.logger.Warn("Proposal execution interrupted", "proposal_id", id, "error", execErr)
	}
	for _, res := range results {
		if !res.OK {
			allOK = false
			s.logger.Warn("Proposal action failed",
				"proposal_id", id, "action", res.Action.Name, "detail", res.Detail)
		}
	}

	to := models.ProposalExecuted
	if !allOK {
		to = models.ProposalFailed
	}
	now := s.clk.Now().UTC()
	updated, err := s.st.Proposals().Transition(ctx, id, models.ProposalApproved, to, executedBy, results, now)
	if err != nil {
		return nil, fmt.Errorf("recording execution of proposal %s: %w", id, err)
	}

	if err := s.publisher.PublishProposalExecuted(ctx, events.ProposalExecutedPayload{
		ProposalID: id,
		Status:     to,
		At:         now,
	}); err != nil {
		s.logger.Warn("Failed to publish proposal.executed", "proposal_id", id, "error", err)
	}
	s.notifier.ProposalExecuted(ctx, updated)

	s.logger.Info("Proposal executed", "proposal_id", id, "status", to, "actions", len(results))
	return updated, nil
}

// Get returns one proposal by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Proposal, error) {
	return s.st.Proposals().Get(ctx, id)
}

// List returns proposals newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status *models.ProposalStatus) ([]*models.Proposal, error) {
	return s.st.Proposals().List(ctx, status)
}

func (s *Service) beginExecution(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executing[id] {
		return fmt.Errorf("%w: %s", ErrExecutionInFlight, id)
	}
	s.executing[id] = true
	return nil
}

func (s *Service) endExecution(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.executing, id)
}

func (s *Service) executeTimeout() time.Duration {
	if s.cfg != nil && s.cfg.Executor.Timeout > 0 {
		return s.cfg.Executor.Timeout
	}
	return defaultExecuteTimeout
}

func validateDraft(draft models.ProposalDraft) error {
	if draft.Title == "" {
		return fmt.Errorf("%w: title required", ErrInvalidDraft)
	}
	if len(draft.Actions) == 0 {
		return fmt.Errorf("%w: at least one action required", ErrInvalidDraft)
	}
	if !draft.Risk.IsValid() {
		return fmt.Errorf("%w: unknown risk %q", ErrInvalidDraft, draft.Risk)
	}
	for _, a := range draft.Actions {
		if a.Name == "" {
			return fmt.Errorf("%w: action name required", ErrInvalidDraft)
		}
	}
	return nil
}
