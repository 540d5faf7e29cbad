package learning

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/events"
	"github.com/lvlup-dev/ascent/pkg/knowledge"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
	"github.com/lvlup-dev/ascent/pkg/store/memory"
)

type loopFixture struct {
	loop   *Loop
	broker *events.Broker
	store  store.Store
	svc    *knowledge.Service
	clock  *clock.Fake
	seq    int
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	st := memory.New()
	clk := clock.NewFake(time.Date(2025, 6, 5, 9, 0, 0, 0, time.UTC))
	broker := events.NewBroker()
	svc := knowledge.NewService(st.Knowledge(), clk)
	return &loopFixture{
		loop:   NewLoop(broker, svc, st, config.Default(), clk),
		broker: broker,
		store:  st,
		svc:    svc,
		clock:  clk,
	}
}

// seedScoredCycle inserts the scenario, response, and score rows a
// committed cycle leaves behind, returning the end payload announcing it.
func (f *loopFixture) seedScoredCycle(t *testing.T, kind models.AgentKind, category models.Category, overall float64) events.CycleEndPayload {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()
	f.seq++
	tag := string(kind) + "-" + strconv.Itoa(f.seq)

	scenario := &models.Scenario{
		ID:         "scn-" + tag,
		AgentKind:  kind,
		Category:   category,
		Complexity: models.ComplexityIntermediate,
		Prompt:     "prompt",
		CriteriaWeights: map[string]float64{
			"structure": 100,
		},
		TimeLimit:   10 * time.Minute,
		Fingerprint: "fp-" + tag,
		CreatedAt:   now,
	}
	require.NoError(t, f.store.Scenarios().Insert(ctx, scenario))

	response := &models.Response{
		ID:         "resp-" + tag,
		ScenarioID: scenario.ID,
		AgentKind:  kind,
		Text:       "answer",
		DurationMS: 1500,
		CreatedAt:  now,
	}
	require.NoError(t, f.store.Responses().Insert(ctx, response))

	score := &models.Score{
		ResponseID:         response.ID,
		Overall:            overall,
		Passed:             overall >= 60,
		CriterionBreakdown: map[string]float64{"structure": overall},
		Strengths:          []string{"structure"},
		Weaknesses:         []string{"code"},
		CreatedAt:          now,
	}
	require.NoError(t, f.store.Scores().Insert(ctx, score))

	return events.CycleEndPayload{
		Type:       events.TypeCycleEnd,
		CycleID:    "cycle-1",
		AgentKind:  kind,
		Outcome:    models.CycleOK,
		ScenarioID: scenario.ID,
		ResponseID: response.ID,
		Category:   category,
		Complexity: scenario.Complexity,
		Overall:    overall,
		Passed:     score.Passed,
		At:         now,
	}
}

func (f *loopFixture) patternsOf(t *testing.T, kind models.AgentKind) []*models.KnowledgePattern {
	t.Helper()
	rows, err := f.svc.Query(context.Background(), store.KnowledgeFilter{Owner: &kind})
	require.NoError(t, err)
	return rows
}

func TestLearnFromCyclePromotesHighScore(t *testing.T) {
	f := newLoopFixture(t)
	payload := f.seedScoredCycle(t, models.AgentImperium, models.CategoryKnowledge, 92)

	require.NoError(t, f.loop.learnFromCycle(context.Background(), payload))

	rows := f.patternsOf(t, models.AgentImperium)
	require.Len(t, rows, 1)
	pattern := rows[0]
	assert.Equal(t, models.PatternSuccess, pattern.Label)
	assert.InDelta(t, 0.92, pattern.Effectiveness, 1e-9)
	assert.Equal(t, "knowledge", pattern.Features["category"])
	assert.Equal(t, "intermediate", pattern.Features["complexity"])
	assert.Equal(t, payload.ScenarioID, pattern.Features["scenario_id"])
	assert.Equal(t, payload.ResponseID, pattern.Features["response_id"])
	assert.Equal(t, int64(1500), pattern.Features["duration_ms"])
	assert.Equal(t, []string{"structure"}, pattern.Features["strengths"])
	assert.Equal(t, []string{"code"}, pattern.Features["weaknesses"])
}

func TestLearnFromCycleRecordsDecisiveFailure(t *testing.T) {
	f := newLoopFixture(t)
	// Knowledge threshold is 60; 40 sits well below the failure margin.
	payload := f.seedScoredCycle(t, models.AgentImperium, models.CategoryKnowledge, 40)

	require.NoError(t, f.loop.learnFromCycle(context.Background(), payload))

	rows := f.patternsOf(t, models.AgentImperium)
	require.Len(t, rows, 1)
	assert.Equal(t, models.PatternFailure, rows[0].Label)
	assert.InDelta(t, 0.20, rows[0].Effectiveness, 1e-9)
}

func TestLearnFromCycleIgnoresIndecisiveBand(t *testing.T) {
	f := newLoopFixture(t)

	// 50 is exactly threshold-10 for knowledge: not low enough to be a
	// failure, not high enough to be a success.
	for _, overall := range []float64{50, 70, 84.99} {
		payload := f.seedScoredCycle(t, models.AgentSandbox, models.CategoryInnovation, overall)
		payload.Category = models.CategoryKnowledge
		require.NoError(t, f.loop.learnFromCycle(context.Background(), payload))
	}

	assert.Empty(t, f.patternsOf(t, models.AgentSandbox))
}

func TestLearnFromCyclePromotesAtBoundary(t *testing.T) {
	f := newLoopFixture(t)
	payload := f.seedScoredCycle(t, models.AgentConquest, models.CategoryPerformance, 85)

	require.NoError(t, f.loop.learnFromCycle(context.Background(), payload))

	rows := f.patternsOf(t, models.AgentConquest)
	require.Len(t, rows, 1)
	assert.Equal(t, models.PatternSuccess, rows[0].Label)
	assert.InDelta(t, 0.85, rows[0].Effectiveness, 1e-9)
}

func TestLearnFromCycleSkipsNonOKOutcomes(t *testing.T) {
	f := newLoopFixture(t)

	for _, outcome := range []models.CycleOutcome{
		models.CycleError,
		models.CycleSkippedTokens,
		models.CycleSkippedResources,
	} {
		payload := events.CycleEndPayload{
			Type:      events.TypeCycleEnd,
			CycleID:   "cycle-x",
			AgentKind: models.AgentGuardian,
			Outcome:   outcome,
			Overall:   95,
			At:        f.clock.Now(),
		}
		require.NoError(t, f.loop.learnFromCycle(context.Background(), payload))
	}

	assert.Empty(t, f.patternsOf(t, models.AgentGuardian))
}

func TestLearnFromCycleSurvivesMissingRows(t *testing.T) {
	f := newLoopFixture(t)

	// The event references rows that were never stored; enrichment is
	// best effort and the pattern still lands.
	payload := events.CycleEndPayload{
		Type:       events.TypeCycleEnd,
		CycleID:    "cycle-gone",
		AgentKind:  models.AgentImperium,
		Outcome:    models.CycleOK,
		ScenarioID: "scn-gone",
		ResponseID: "resp-gone",
		Category:   models.CategoryKnowledge,
		Complexity: models.ComplexityAdvanced,
		Overall:    90,
		At:         f.clock.Now(),
	}
	require.NoError(t, f.loop.learnFromCycle(context.Background(), payload))

	rows := f.patternsOf(t, models.AgentImperium)
	require.Len(t, rows, 1)
	assert.NotContains(t, rows[0].Features, "duration_ms")
	assert.NotContains(t, rows[0].Features, "strengths")
}

func TestLearnFromCycleNeverTouchesMetrics(t *testing.T) {
	f := newLoopFixture(t)
	payload := f.seedScoredCycle(t, models.AgentImperium, models.CategoryKnowledge, 92)

	require.NoError(t, f.loop.learnFromCycle(context.Background(), payload))

	_, err := f.store.Metrics().Get(context.Background(), models.AgentImperium)
	assert.True(t, errors.Is(err, store.ErrNotFound),
		"learning must leave agent metrics to the cycle engine")
}

func TestHandleIgnoresCycleStart(t *testing.T) {
	f := newLoopFixture(t)
	raw, err := json.Marshal(events.CycleStartPayload{
		Type:      events.TypeCycleStart,
		CycleID:   "cycle-1",
		AgentKind: models.AgentImperium,
		At:        f.clock.Now(),
	})
	require.NoError(t, err)

	f.loop.handle(context.Background(), events.Delivery{Channel: events.ChannelCycle, Payload: raw})

	assert.Empty(t, f.patternsOf(t, models.AgentImperium))
}

func TestHandleAppliesProposalDecisions(t *testing.T) {
	f := newLoopFixture(t)
	ctx := context.Background()

	stored, err := f.svc.Record(ctx, &models.KnowledgePattern{
		OwnerKind:     models.AgentGuardian,
		Label:         models.PatternSuccess,
		Features:      models.PatternFeatures{"proposal_id": "prop-1"},
		Effectiveness: 0.5,
	})
	require.NoError(t, err)

	raw, err := json.Marshal(events.ProposalDecidedPayload{
		Type:       events.TypeProposalDecided,
		ProposalID: "prop-1",
		Status:     models.ProposalApproved,
		DecidedBy:  "ops",
		At:         f.clock.Now(),
	})
	require.NoError(t, err)
	f.loop.handle(ctx, events.Delivery{Channel: events.ChannelProposal, Payload: raw})

	got, err := f.svc.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got.Effectiveness, 1e-9)
}

func TestLoopConsumesFromBrokerUntilStopped(t *testing.T) {
	f := newLoopFixture(t)
	payload := f.seedScoredCycle(t, models.AgentImperium, models.CategoryKnowledge, 92)
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	f.loop.Start()
	f.broker.Dispatch(events.ChannelCycle, raw)

	require.Eventually(t, func() bool {
		return len(f.patternsOf(t, models.AgentImperium)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.loop.Stop()
	f.loop.Stop() // idempotent

	f.broker.Dispatch(events.ChannelCycle, raw)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.patternsOf(t, models.AgentImperium), 1)
}

func TestClassifyBands(t *testing.T) {
	tests := []struct {
		name      string
		overall   float64
		threshold float64
		label     models.PatternLabel
		eff       float64
		decisive  bool
	}{
		{"well above promote", 95, 60, models.PatternSuccess, 0.95, true},
		{"promote boundary", 85, 70, models.PatternSuccess, 0.85, true},
		{"just under promote", 84.9, 60, "", 0, false},
		{"just above failure band", 50, 60, "", 0, false},
		{"decisive failure", 30, 60, models.PatternFailure, 0.30, true},
		{"security failure band", 55, 70, models.PatternFailure, 0.15, true},
		{"zero score", 0, 60, models.PatternFailure, 0.60, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, eff, decisive := classify(tt.overall, tt.threshold)
			assert.Equal(t, tt.decisive, decisive)
			if tt.decisive {
				assert.Equal(t, tt.label, label)
				assert.InDelta(t, tt.eff, eff, 1e-9)
			}
		})
	}
}
