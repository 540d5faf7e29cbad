// Package models defines the domain types shared across the platform.
package models

import "time"

// AgentKind identifies one of the four fixed agents. The set is closed;
// there are no dynamic agent kinds.
type AgentKind string

const (
	// AgentImperium is the architect/tester agent
	AgentImperium AgentKind = "imperium"
	// AgentGuardian is the security/self-healing agent
	AgentGuardian AgentKind = "guardian"
	// AgentSandbox is the experimentation agent
	AgentSandbox AgentKind = "sandbox"
	// AgentConquest is the performance/optimization agent
	AgentConquest AgentKind = "conquest"
)

// AllAgentKinds lists every agent kind in a stable order.
func AllAgentKinds() []AgentKind {
	return []AgentKind{AgentImperium, AgentGuardian, AgentSandbox, AgentConquest}
}

// IsValid checks if the agent kind is one of the four fixed kinds
func (k AgentKind) IsValid() bool {
	switch k {
	case AgentImperium, AgentGuardian, AgentSandbox, AgentConquest:
		return true
	default:
		return false
	}
}

// AllowedCategories returns the test categories this agent may be tested in.
func (k AgentKind) AllowedCategories() []Category {
	switch k {
	case AgentImperium:
		return []Category{CategoryKnowledge, CategoryCodeQuality, CategorySelfImprovement}
	case AgentGuardian:
		return []Category{CategorySecurity, CategoryCodeQuality, CategoryPerformance}
	case AgentSandbox:
		return []Category{CategoryInnovation, CategoryExperiment, CategoryCrossAI}
	case AgentConquest:
		return []Category{CategoryPerformance, CategoryInnovation, CategoryCodeQuality}
	default:
		return nil
	}
}

// AgentStatus is the lifecycle state of an agent runner.
type AgentStatus string

const (
	// AgentStatusActive means the agent participates in scheduled cycles
	AgentStatusActive AgentStatus = "active"
	// AgentStatusPaused means scheduled cycles are suspended
	AgentStatusPaused AgentStatus = "paused"
	// AgentStatusIdle means the agent has never run a cycle yet
	AgentStatusIdle AgentStatus = "idle"
)

// IsValid checks if the agent status is valid
func (s AgentStatus) IsValid() bool {
	return s == AgentStatusActive || s == AgentStatusPaused || s == AgentStatusIdle
}

// AgentMetrics is the durable per-agent progression state. One row per kind.
// learning_score and xp are monotonically non-decreasing outside an explicit
// admin reset.
type AgentMetrics struct {
	Kind          AgentKind   `json:"kind"`
	Level         int         `json:"level"`
	XP            int64       `json:"xp"`
	Prestige      int         `json:"prestige"`
	LearningScore float64     `json:"learning_score"`
	SuccessRate   float64     `json:"success_rate"`
	TotalCycles   int64       `json:"total_cycles"`
	LastCycleAt   *time.Time  `json:"last_cycle_at,omitempty"`
	Status        AgentStatus `json:"status"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// FailureRate derives the failure percentage from the success rate.
func (m *AgentMetrics) FailureRate() float64 {
	return 100 - m.SuccessRate
}

// DomainResult is the outcome of an agent's per-cycle domain task. Summary
// lands in the cycle record notes; Details stay ephemeral.
type DomainResult struct {
	Summary string         `json:"summary"`
	Details map[string]any `json:"details,omitempty"`
}

// NewAgentMetrics returns the initial metrics row for a kind.
func NewAgentMetrics(kind AgentKind, now time.Time) *AgentMetrics {
	return &AgentMetrics{
		Kind:      kind,
		Level:     1,
		Status:    AgentStatusIdle,
		UpdatedAt: now,
	}
}
