package learning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

func (f *loopFixture) mustRecord(t *testing.T, pattern *models.KnowledgePattern) *models.KnowledgePattern {
	t.Helper()
	stored, err := f.svc.Record(context.Background(), pattern)
	require.NoError(t, err)
	return stored
}

func TestApplyFeedbackAdjustsEveryMatch(t *testing.T) {
	f := newLoopFixture(t)
	ctx := context.Background()

	first := f.mustRecord(t, &models.KnowledgePattern{
		OwnerKind:     models.AgentImperium,
		Label:         models.PatternSuccess,
		Features:      models.PatternFeatures{"response_id": "resp-1"},
		Effectiveness: 0.5,
	})
	second := f.mustRecord(t, &models.KnowledgePattern{
		OwnerKind:     models.AgentSandbox,
		Label:         models.PatternSuccess,
		Features:      models.PatternFeatures{"response_id": "resp-1", "origin_pattern_id": first.ID},
		Effectiveness: 0.7,
	})
	f.mustRecord(t, &models.KnowledgePattern{
		OwnerKind:     models.AgentImperium,
		Label:         models.PatternSuccess,
		Features:      models.PatternFeatures{"response_id": "resp-other"},
		Effectiveness: 0.9,
	})

	adjusted, err := f.loop.ApplyFeedback(ctx, FeedbackRef{ResponseID: "resp-1"}, VerdictApproved)
	require.NoError(t, err)
	assert.Equal(t, 2, adjusted)

	got, err := f.svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got.Effectiveness, 1e-9)
	got, err = f.svc.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, got.Effectiveness, 1e-9)
}

func TestApplyFeedbackVerdictDeltas(t *testing.T) {
	tests := []struct {
		verdict Verdict
		want    float64
	}{
		{VerdictApproved, 0.60},
		{VerdictRejected, 0.40},
		{VerdictEdited, 0.55},
	}
	for _, tt := range tests {
		t.Run(string(tt.verdict), func(t *testing.T) {
			f := newLoopFixture(t)
			ctx := context.Background()
			stored := f.mustRecord(t, &models.KnowledgePattern{
				OwnerKind:     models.AgentGuardian,
				Label:         models.PatternSuccess,
				Features:      models.PatternFeatures{"proposal_id": "prop-1"},
				Effectiveness: 0.5,
			})

			adjusted, err := f.loop.ApplyFeedback(ctx, FeedbackRef{ProposalID: "prop-1"}, tt.verdict)
			require.NoError(t, err)
			assert.Equal(t, 1, adjusted)

			got, err := f.svc.Get(ctx, stored.ID)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got.Effectiveness, 1e-9)
		})
	}
}

func TestApplyFeedbackMintsOnPositiveMiss(t *testing.T) {
	f := newLoopFixture(t)
	ctx := context.Background()
	payload := f.seedScoredCycle(t, models.AgentSandbox, models.CategoryInnovation, 70)

	adjusted, err := f.loop.ApplyFeedback(ctx, FeedbackRef{ResponseID: payload.ResponseID}, VerdictApproved)
	require.NoError(t, err)
	assert.Equal(t, 1, adjusted)

	rows := f.patternsOf(t, models.AgentSandbox)
	require.Len(t, rows, 1)
	pattern := rows[0]
	assert.Equal(t, models.PatternSuccess, pattern.Label)
	assert.InDelta(t, 0.6, pattern.Effectiveness, 1e-9)
	assert.Equal(t, payload.ResponseID, pattern.Features["response_id"])
	assert.Equal(t, payload.ScenarioID, pattern.Features["scenario_id"])
	assert.Equal(t, "feedback", pattern.Features["source"])
	assert.Equal(t, "approved", pattern.Features["verdict"])
}

func TestApplyFeedbackMintsGuardianPatternForProposals(t *testing.T) {
	f := newLoopFixture(t)
	ctx := context.Background()

	adjusted, err := f.loop.ApplyFeedback(ctx, FeedbackRef{ProposalID: "prop-9"}, VerdictEdited)
	require.NoError(t, err)
	assert.Equal(t, 1, adjusted)

	rows := f.patternsOf(t, models.AgentGuardian)
	require.Len(t, rows, 1)
	assert.Equal(t, "prop-9", rows[0].Features["proposal_id"])
	assert.InDelta(t, 0.55, rows[0].Effectiveness, 1e-9)
}

func TestApplyFeedbackNegativeMissIsNoOp(t *testing.T) {
	f := newLoopFixture(t)
	ctx := context.Background()

	adjusted, err := f.loop.ApplyFeedback(ctx, FeedbackRef{ResponseID: "resp-gone"}, VerdictRejected)
	require.NoError(t, err)
	assert.Zero(t, adjusted)

	for _, kind := range models.AllAgentKinds() {
		assert.Empty(t, f.patternsOf(t, kind))
	}
}

func TestApplyFeedbackMintFailsWithoutResponseRow(t *testing.T) {
	f := newLoopFixture(t)

	_, err := f.loop.ApplyFeedback(context.Background(), FeedbackRef{ResponseID: "resp-gone"}, VerdictApproved)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApplyFeedbackRejectsBadInput(t *testing.T) {
	f := newLoopFixture(t)
	ctx := context.Background()

	_, err := f.loop.ApplyFeedback(ctx, FeedbackRef{ResponseID: "resp-1"}, Verdict("meh"))
	assert.ErrorIs(t, err, ErrInvalidVerdict)

	_, err = f.loop.ApplyFeedback(ctx, FeedbackRef{}, VerdictApproved)
	assert.Error(t, err)
}

func TestApplyFeedbackClampsAtCeiling(t *testing.T) {
	f := newLoopFixture(t)
	ctx := context.Background()
	stored := f.mustRecord(t, &models.KnowledgePattern{
		OwnerKind:     models.AgentImperium,
		Label:         models.PatternSuccess,
		Features:      models.PatternFeatures{"response_id": "resp-top"},
		Effectiveness: 0.97,
	})

	_, err := f.loop.ApplyFeedback(ctx, FeedbackRef{ResponseID: "resp-top"}, VerdictApproved)
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Effectiveness)
}
