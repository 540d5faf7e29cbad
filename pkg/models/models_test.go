package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentKindAllowedCategories(t *testing.T) {
	tests := []struct {
		kind AgentKind
		want []Category
	}{
		{AgentImperium, []Category{CategoryKnowledge, CategoryCodeQuality, CategorySelfImprovement}},
		{AgentGuardian, []Category{CategorySecurity, CategoryCodeQuality, CategoryPerformance}},
		{AgentSandbox, []Category{CategoryInnovation, CategoryExperiment, CategoryCrossAI}},
		{AgentConquest, []Category{CategoryPerformance, CategoryInnovation, CategoryCodeQuality}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.AllowedCategories())
		})
	}
	assert.Nil(t, AgentKind("nope").AllowedCategories())
}

func TestComplexityOrdering(t *testing.T) {
	assert.Equal(t, ComplexityIntermediate, ComplexityBasic.Raise())
	assert.Equal(t, ComplexityLegendary, ComplexityLegendary.Raise(), "raise clamps at legendary")
	assert.Equal(t, ComplexityBasic, ComplexityBasic.Lower(), "lower clamps at basic")
	assert.Equal(t, ComplexityMaster, ComplexityLegendary.Lower())
	assert.Equal(t, -1, Complexity("weird").Rank())
}

func TestComplexityTimeLimits(t *testing.T) {
	tests := []struct {
		complexity Complexity
		want       time.Duration
	}{
		{ComplexityBasic, 300 * time.Second},
		{ComplexityIntermediate, 600 * time.Second},
		{ComplexityAdvanced, 900 * time.Second},
		{ComplexityExpert, 1200 * time.Second},
		{ComplexityMaster, 1800 * time.Second},
		{ComplexityLegendary, 3600 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.complexity.TimeLimit(), string(tt.complexity))
	}
}

func TestProposalStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from ProposalStatus
		to   ProposalStatus
		want bool
	}{
		{"pending to approved", ProposalPending, ProposalApproved, true},
		{"pending to rejected", ProposalPending, ProposalRejected, true},
		{"pending to executed", ProposalPending, ProposalExecuted, false},
		{"approved to executed", ProposalApproved, ProposalExecuted, true},
		{"approved to failed", ProposalApproved, ProposalFailed, true},
		{"approved to rejected", ProposalApproved, ProposalRejected, false},
		{"executed to anything", ProposalExecuted, ProposalFailed, false},
		{"rejected to approved", ProposalRejected, ProposalApproved, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTokenAggregateUsagePct(t *testing.T) {
	agg := &TokenAggregate{TokensTotal: 80}
	assert.InDelta(t, 0.8, agg.UsagePct(100), 1e-9)
	assert.Zero(t, agg.UsagePct(0), "unset cap reads as zero usage")
}

func TestMonthOf(t *testing.T) {
	ts := time.Date(2025, 1, 31, 23, 59, 0, 0, time.FixedZone("X", 3600))
	require.Equal(t, "2025-01", MonthOf(ts))
}

func TestFailureRateDerived(t *testing.T) {
	m := &AgentMetrics{SuccessRate: 62.5}
	assert.InDelta(t, 37.5, m.FailureRate(), 1e-9)
}
