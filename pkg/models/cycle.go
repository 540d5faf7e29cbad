package models

import "time"

// CycleOutcome classifies how a cycle ended.
type CycleOutcome string

const (
	// CycleOK means the cycle ran to completion and committed
	CycleOK CycleOutcome = "ok"
	// CycleSkippedResources means the resource gate denied the tick
	CycleSkippedResources CycleOutcome = "skipped_resources"
	// CycleSkippedTokens means both providers were budget-exhausted
	CycleSkippedTokens CycleOutcome = "skipped_tokens"
	// CycleError means the cycle failed mid-flight
	CycleError CycleOutcome = "error"
)

// IsValid checks if the cycle outcome is valid
func (o CycleOutcome) IsValid() bool {
	switch o {
	case CycleOK, CycleSkippedResources, CycleSkippedTokens, CycleError:
		return true
	default:
		return false
	}
}

// CycleRecord is the append-only history of one cycle attempt.
type CycleRecord struct {
	ID        string       `json:"id"`
	AgentKind AgentKind    `json:"agent_kind"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	Outcome   CycleOutcome `json:"outcome"`
	XPDelta   int64        `json:"xp_delta"`
	Notes     string       `json:"notes,omitempty"`
}
