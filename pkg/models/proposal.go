package models

import "time"

// ProposalStatus tracks the proposal lifecycle:
// pending -> approved|rejected, approved -> executed|failed.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
	ProposalExecuted ProposalStatus = "executed"
	ProposalFailed   ProposalStatus = "failed"
)

// IsValid checks if the proposal status is valid
func (s ProposalStatus) IsValid() bool {
	switch s {
	case ProposalPending, ProposalApproved, ProposalRejected, ProposalExecuted, ProposalFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine permits s -> next.
func (s ProposalStatus) CanTransitionTo(next ProposalStatus) bool {
	switch s {
	case ProposalPending:
		return next == ProposalApproved || next == ProposalRejected
	case ProposalApproved:
		return next == ProposalExecuted || next == ProposalFailed
	default:
		return false
	}
}

// Risk grades the blast radius of a proposal's actions.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// IsValid checks if the risk level is valid
func (r Risk) IsValid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// ProposalKindSystemHealing is the only proposal kind Guardian raises.
const ProposalKindSystemHealing = "system_healing"

// Action is one declared effect a proposal will apply when executed.
// Actions are named capabilities, never raw shell.
type Action struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}

// ActionResult is the executor's outcome for one action.
type ActionResult struct {
	Action Action `json:"action"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// ProposalDraft is what Guardian hands the proposal service; identity,
// status, and timestamps are assigned on create.
type ProposalDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Risk        Risk     `json:"risk"`
	Actions     []Action `json:"actions"`
}

// Proposal is a Guardian-initiated privileged change awaiting human approval.
// Execution happens at most once.
type Proposal struct {
	ID              string         `json:"id"`
	Kind            string         `json:"kind"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Actions         []Action       `json:"actions"`
	Risk            Risk           `json:"risk"`
	Status          ProposalStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	DecidedAt       *time.Time     `json:"decided_at,omitempty"`
	DecidedBy       string         `json:"decided_by,omitempty"`
	ExecutionResult []ActionResult `json:"execution_result,omitempty"`
}
