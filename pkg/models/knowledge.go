package models

import "time"

// PatternLabel marks whether a knowledge pattern captures behavior worth
// repeating or avoiding.
type PatternLabel string

const (
	PatternSuccess PatternLabel = "success"
	PatternFailure PatternLabel = "failure"
)

// IsValid checks if the pattern label is valid
func (l PatternLabel) IsValid() bool {
	return l == PatternSuccess || l == PatternFailure
}

// PatternFeatures is the opaque structured record a pattern carries.
// Keys are feature names; values are JSON-encodable.
type PatternFeatures map[string]any

// KnowledgePattern is one labeled behavior record owned by an agent.
// Effectiveness is maintained by the learning loop, in [0,1].
type KnowledgePattern struct {
	ID            string          `json:"id"`
	OwnerKind     AgentKind       `json:"owner_kind"`
	Label         PatternLabel    `json:"label"`
	Features      PatternFeatures `json:"features"`
	Effectiveness float64         `json:"effectiveness"`
	CreatedAt     time.Time       `json:"created_at"`
}
