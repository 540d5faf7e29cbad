package events

import (
	"time"

	"github.com/lvlup-dev/ascent/pkg/models"
)

// CycleStartPayload announces that an agent cycle began.
type CycleStartPayload struct {
	Type      string           `json:"type"`
	CycleID   string           `json:"cycle_id"`
	AgentKind models.AgentKind `json:"agent_kind"`
	Category  models.Category  `json:"category,omitempty"`
	At        time.Time        `json:"at"`
}

// CycleEndPayload announces a cycle outcome, including skips and errors.
// Scenario and response IDs are set only for cycles that scored a test;
// the learning loop uses them to pull the full score breakdown.
type CycleEndPayload struct {
	Type       string              `json:"type"`
	CycleID    string              `json:"cycle_id"`
	AgentKind  models.AgentKind    `json:"agent_kind"`
	Outcome    models.CycleOutcome `json:"outcome"`
	ScenarioID string              `json:"scenario_id,omitempty"`
	ResponseID string              `json:"response_id,omitempty"`
	Category   models.Category     `json:"category,omitempty"`
	Complexity models.Complexity   `json:"complexity,omitempty"`
	Overall    float64             `json:"overall,omitempty"`
	Passed     bool                `json:"passed,omitempty"`
	XPDelta    int64               `json:"xp_delta,omitempty"`
	At         time.Time           `json:"at"`
}

// ProposalCreatedPayload announces a new pending proposal.
type ProposalCreatedPayload struct {
	Type       string      `json:"type"`
	ProposalID string      `json:"proposal_id"`
	Title      string      `json:"title"`
	Risk       models.Risk `json:"risk"`
	At         time.Time   `json:"at"`
}

// ProposalDecidedPayload announces an approve/reject decision. The event
// row doubles as the decision audit trail, so it carries the reason too.
type ProposalDecidedPayload struct {
	Type       string                `json:"type"`
	ProposalID string                `json:"proposal_id"`
	Status     models.ProposalStatus `json:"status"`
	DecidedBy  string                `json:"decided_by"`
	Reason     string                `json:"reason,omitempty"`
	At         time.Time             `json:"at"`
}

// ProposalExecutedPayload announces the execution outcome of an approved
// proposal.
type ProposalExecutedPayload struct {
	Type       string                `json:"type"`
	ProposalID string                `json:"proposal_id"`
	Status     models.ProposalStatus `json:"status"`
	At         time.Time             `json:"at"`
}

// TokenPressurePayload warns that a budget crossed a usage step (≥ 0.8).
type TokenPressurePayload struct {
	Type      string           `json:"type"`
	AgentKind models.AgentKind `json:"agent_kind"`
	Provider  models.Provider  `json:"provider"`
	Month     string           `json:"month"`
	Usage     float64          `json:"usage"`
	At        time.Time        `json:"at"`
}
