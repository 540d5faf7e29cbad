package api

import (
	"time"

	"github.com/lvlup-dev/ascent/pkg/models"
)

// agentStatusResponse is returned by GET /api/agents/status.
type agentStatusResponse struct {
	Agents []agentStatus `json:"agents"`
}

// agentStatus is one agent's scheduling state and progression.
type agentStatus struct {
	Kind          models.AgentKind   `json:"kind"`
	Status        models.AgentStatus `json:"status"`
	Level         int                `json:"level"`
	XP            int64              `json:"xp"`
	LearningScore float64            `json:"learning_score"`
	LastCycleAt   *time.Time         `json:"last_cycle_at,omitempty"`
}

// triggerResponse is returned by POST /api/agents/:kind/trigger. The cycle
// runs asynchronously; cycle_id correlates with later cycle.end events.
type triggerResponse struct {
	CycleID string `json:"cycle_id"`
}

// custodyTestResponse is returned by POST /api/custody/test after the
// requested cycle has run to completion.
type custodyTestResponse struct {
	ScenarioID string              `json:"scenario_id"`
	CycleID    string              `json:"cycle_id"`
	Outcome    models.CycleOutcome `json:"outcome"`
	Overall    float64             `json:"overall"`
	Passed     bool                `json:"passed"`
}

// proposalListResponse wraps GET /api/proposals.
type proposalListResponse struct {
	Proposals []*models.Proposal `json:"proposals"`
}

// usageResponse wraps GET /api/tokens/usage.
type usageResponse struct {
	Aggregates []*models.TokenAggregate `json:"aggregates"`
}

// sourceListResponse wraps GET /api/sources.
type sourceListResponse struct {
	Sources []models.SourceInfo `json:"sources"`
}

// knowledgeResponse wraps GET /api/knowledge.
type knowledgeResponse struct {
	Patterns []*models.KnowledgePattern `json:"patterns"`
}

// healthCheck is one named probe inside healthResponse.
type healthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is returned by GET /healthz.
type healthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]healthCheck `json:"checks"`
}
