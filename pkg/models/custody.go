package models

import "time"

// Category classifies what a custody test exercises.
type Category string

const (
	// CategoryKnowledge tests factual and conceptual recall
	CategoryKnowledge Category = "knowledge"
	// CategoryCodeQuality tests review and refactoring judgement
	CategoryCodeQuality Category = "code_quality"
	// CategorySecurity tests vulnerability analysis and hardening
	CategorySecurity Category = "security"
	// CategoryPerformance tests optimization and profiling reasoning
	CategoryPerformance Category = "performance"
	// CategoryInnovation tests novel solution design
	CategoryInnovation Category = "innovation"
	// CategorySelfImprovement tests introspection on past cycles
	CategorySelfImprovement Category = "self_improvement"
	// CategoryCrossAI tests reasoning about peer-agent collaboration
	CategoryCrossAI Category = "cross_ai"
	// CategoryExperiment tests experiment design and measurement
	CategoryExperiment Category = "experiment"
)

// AllCategories lists every category in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryKnowledge, CategoryCodeQuality, CategorySecurity,
		CategoryPerformance, CategoryInnovation, CategorySelfImprovement,
		CategoryCrossAI, CategoryExperiment,
	}
}

// IsValid checks if the category is valid
func (c Category) IsValid() bool {
	switch c {
	case CategoryKnowledge, CategoryCodeQuality, CategorySecurity,
		CategoryPerformance, CategoryInnovation, CategorySelfImprovement,
		CategoryCrossAI, CategoryExperiment:
		return true
	default:
		return false
	}
}

// Complexity grades how demanding a scenario is. Ordered Basic..Legendary.
type Complexity string

const (
	ComplexityBasic        Complexity = "basic"
	ComplexityIntermediate Complexity = "intermediate"
	ComplexityAdvanced     Complexity = "advanced"
	ComplexityExpert       Complexity = "expert"
	ComplexityMaster       Complexity = "master"
	ComplexityLegendary    Complexity = "legendary"
)

var complexityOrder = []Complexity{
	ComplexityBasic, ComplexityIntermediate, ComplexityAdvanced,
	ComplexityExpert, ComplexityMaster, ComplexityLegendary,
}

var complexityTimeLimits = map[Complexity]time.Duration{
	ComplexityBasic:        300 * time.Second,
	ComplexityIntermediate: 600 * time.Second,
	ComplexityAdvanced:     900 * time.Second,
	ComplexityExpert:       1200 * time.Second,
	ComplexityMaster:       1800 * time.Second,
	ComplexityLegendary:    3600 * time.Second,
}

// AllComplexities lists the complexities from Basic to Legendary.
func AllComplexities() []Complexity {
	out := make([]Complexity, len(complexityOrder))
	copy(out, complexityOrder)
	return out
}

// IsValid checks if the complexity is valid
func (c Complexity) IsValid() bool {
	_, ok := complexityTimeLimits[c]
	return ok
}

// TimeLimit returns the per-scenario time budget for this complexity.
func (c Complexity) TimeLimit() time.Duration {
	return complexityTimeLimits[c]
}

// Rank returns the zero-based position of c in the Basic..Legendary order,
// -1 when invalid.
func (c Complexity) Rank() int {
	for i, v := range complexityOrder {
		if v == c {
			return i
		}
	}
	return -1
}

// Raise returns the next harder complexity, clamped at Legendary.
func (c Complexity) Raise() Complexity {
	i := c.Rank()
	if i < 0 || i == len(complexityOrder)-1 {
		return complexityOrder[len(complexityOrder)-1]
	}
	return complexityOrder[i+1]
}

// Lower returns the next easier complexity, clamped at Basic.
func (c Complexity) Lower() Complexity {
	i := c.Rank()
	if i <= 0 {
		return complexityOrder[0]
	}
	return complexityOrder[i-1]
}

// Scenario is one generated custody test. Immutable once written.
type Scenario struct {
	ID              string             `json:"id"`
	AgentKind       AgentKind          `json:"agent_kind"`
	Category        Category           `json:"category"`
	Complexity      Complexity         `json:"complexity"`
	Prompt          string             `json:"prompt"`
	CriteriaWeights map[string]float64 `json:"criteria_weights"`
	TimeLimit       time.Duration      `json:"time_limit"`
	Fingerprint     string             `json:"fingerprint"`
	CreatedAt       time.Time          `json:"created_at"`
}

// Response is an agent's answer to a scenario. Immutable once written.
type Response struct {
	ID         string    `json:"id"`
	ScenarioID string    `json:"scenario_id"`
	AgentKind  AgentKind `json:"agent_kind"`
	Text       string    `json:"text"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Score is the graded outcome of a response. Immutable once written.
type Score struct {
	ResponseID         string             `json:"response_id"`
	Overall            float64            `json:"overall"`
	Passed             bool               `json:"passed"`
	CriterionBreakdown map[string]float64 `json:"criterion_breakdown"`
	Feedback           string             `json:"feedback"`
	Strengths          []string           `json:"strengths"`
	Weaknesses         []string           `json:"weaknesses"`
	CreatedAt          time.Time          `json:"created_at"`
}

// CustodyAnalytics aggregates scoring history for the API.
type CustodyAnalytics struct {
	TotalTests           int64                 `json:"total_tests"`
	PassRate             float64               `json:"pass_rate"`
	AverageScore         float64               `json:"average_score"`
	ByAgent              map[AgentKind]float64 `json:"by_agent"`
	CategoryDistribution map[Category]int64    `json:"category_distribution"`
	RecentScores         []float64             `json:"recent_scores"`
}
