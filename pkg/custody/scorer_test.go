package custody

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/models"
)

func newTestScorer(t *testing.T, opts ...ScorerOption) (*Scorer, *config.Config) {
	t.Helper()
	cfg := config.Default()
	fc := clock.NewFake(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	return NewScorer(cfg, fc, opts...), cfg
}

func knowledgeScenario(t *testing.T) *models.Scenario {
	t.Helper()
	gen, _, _ := newTestGenerator(t, WithSeedFunc(func() int64 { return 42 }))
	sc, err := gen.Generate(context.Background(), models.AgentImperium, models.CategoryKnowledge, models.ComplexityIntermediate)
	require.NoError(t, err)
	return sc
}

func responseFor(sc *models.Scenario, text string) *models.Response {
	return &models.Response{
		ID:         "resp-1",
		ScenarioID: sc.ID,
		AgentKind:  sc.AgentKind,
		Text:       text,
		DurationMS: 1200,
		CreatedAt:  time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC),
	}
}

// strongAnswer builds a response that hits every detector: it quotes the
// prompt (coverage), uses headings, paragraphs and bullets (structure),
// includes fenced code (code), numbers and long words (depth), and the
// category marker terms.
func strongAnswer(sc *models.Scenario) string {
	var b strings.Builder
	b.WriteString("## Assessment\n\n")
	b.WriteString(sc.Prompt)
	b.WriteString("\n\nFor example, the definition matters because the tradeoff ")
	b.WriteString("is specifically visible in practice: we contrast approaches and guarantee invariants.\n\n")
	b.WriteString("- throughput rises from 1200 to 4800 requests per second\n")
	b.WriteString("- latency p99 drops 45 percent across 3 regions and 12 nodes\n")
	b.WriteString("- replication, consistency, observability, instrumentation considerations\n\n")
	b.WriteString("```go\nfunc retry(n int) error {\n\tfor i := 0; i < n; i++ {\n\t\tif err := attempt(i); err == nil {\n\t\t\treturn nil\n\t\t}\n\t}\n\treturn ErrExhausted\n}\n```\n\n")
	b.WriteString("Closing paragraph summarizing the measured 25 percent improvement across 8 scenarios.\n\n")
	b.WriteString("Qualities demonstrated: " + strings.Join(markersFor(sc.Category), ", ") + ".\n")
	return b.String()
}

// syntheticAnswer ramps quality with tier so a batch of responses spreads
// scores widely.
func syntheticAnswer(sc *models.Scenario, i int) string {
	markers := markersFor(sc.Category)
	var b strings.Builder
	switch {
	case i < 10:
		fmt.Fprintf(&b, "Short answer %d.", i)
	case i < 20:
		fmt.Fprintf(&b, "A modest answer %d mentioning %s and little else.\n\n", i, markers[i%len(markers)])
		b.WriteString("It has two paragraphs but no lists, code, or numbers to speak of.")
	case i < 30:
		b.WriteString("## Plan\n\nA structured answer with specifics.\n\n")
		fmt.Fprintf(&b, "- point one about %s\n- point two with number %d\n- point three citing %d nodes\n\n", markers[0], i*7, i)
		b.WriteString("A closing paragraph that stays prose-only with considerable elaboration throughout.")
	case i < 40:
		b.WriteString("## Deep Dive\n\nDetailed reasoning with measurements.\n\n")
		fmt.Fprintf(&b, "- memory drops from %d MB to %d MB\n- reconnection storms fall 60 percent\n\n", 100+i, 40+i)
		fmt.Fprintf(&b, "Because %s and %s dominate, the implementation targets both.\n\n", markers[0], markers[1%len(markers)])
		b.WriteString("```go\nfunc sample() int {\n\treturn 42\n}\n```\n")
	default:
		b.WriteString(strongAnswer(sc))
		fmt.Fprintf(&b, "\nAddendum %d with further quantification: %d, %d, %d.", i, i*3, i*5, i*11)
	}
	return b.String()
}

func TestScoreSpreadsAcrossResponseQuality(t *testing.T) {
	scorer, _ := newTestScorer(t)
	sc := knowledgeScenario(t)
	ctx := context.Background()

	var overalls []float64
	for i := 0; i < 50; i++ {
		score, err := scorer.Score(ctx, sc, responseFor(sc, syntheticAnswer(sc, i)))
		require.NoError(t, err)
		require.GreaterOrEqual(t, score.Overall, 0.0)
		require.LessOrEqual(t, score.Overall, 100.0)
		overalls = append(overalls, score.Overall)
	}

	var sum float64
	for _, v := range overalls {
		sum += v
	}
	mean := sum / float64(len(overalls))
	var variance float64
	for _, v := range overalls {
		variance += (v - mean) * (v - mean)
	}
	sigma := math.Sqrt(variance / float64(len(overalls)))
	assert.Greater(t, sigma, 5.0, "scores collapsed around %.2f", mean)
}

func TestScoreIsDeterministic(t *testing.T) {
	scorer, _ := newTestScorer(t)
	sc := knowledgeScenario(t)
	resp := responseFor(sc, strongAnswer(sc))

	first, err := scorer.Score(context.Background(), sc, resp)
	require.NoError(t, err)
	second, err := scorer.Score(context.Background(), sc, resp)
	require.NoError(t, err)

	assert.Equal(t, first.Overall, second.Overall)
	assert.Equal(t, first.CriterionBreakdown, second.CriterionBreakdown)
	assert.Equal(t, first.Strengths, second.Strengths)
	assert.Equal(t, first.Weaknesses, second.Weaknesses)
}

func TestScorePassedTracksThreshold(t *testing.T) {
	scorer, cfg := newTestScorer(t)
	sc := knowledgeScenario(t)
	threshold := cfg.PassThreshold(string(sc.Category))
	ctx := context.Background()

	strong, err := scorer.Score(ctx, sc, responseFor(sc, strongAnswer(sc)))
	require.NoError(t, err)
	assert.Equal(t, strong.Overall >= threshold, strong.Passed)
	assert.True(t, strong.Passed, "strong answer scored %.2f below threshold %.0f", strong.Overall, threshold)

	weak, err := scorer.Score(ctx, sc, responseFor(sc, "no."))
	require.NoError(t, err)
	assert.Equal(t, weak.Overall >= threshold, weak.Passed)
	assert.False(t, weak.Passed, "one-word answer scored %.2f", weak.Overall)
	assert.Greater(t, strong.Overall, weak.Overall)
}

func TestScoreGradesEveryCriterion(t *testing.T) {
	scorer, _ := newTestScorer(t)
	sc := knowledgeScenario(t)

	score, err := scorer.Score(context.Background(), sc, responseFor(sc, strongAnswer(sc)))
	require.NoError(t, err)

	require.Len(t, score.CriterionBreakdown, len(sc.CriteriaWeights))
	for name := range sc.CriteriaWeights {
		sub, ok := score.CriterionBreakdown[name]
		require.True(t, ok, "criterion %s missing from breakdown", name)
		assert.GreaterOrEqual(t, sub, 0.0)
		assert.LessOrEqual(t, sub, 100.0)
	}
	assert.NotEmpty(t, score.Feedback)
	assert.Equal(t, "resp-1", score.ResponseID)
}

func TestScoreIndeterminateWithoutDetectors(t *testing.T) {
	scorer, _ := newTestScorer(t)
	sc := knowledgeScenario(t)

	sc.CriteriaWeights = map[string]float64{"telepathy": 60, "charisma": 40}
	_, err := scorer.Score(context.Background(), sc, responseFor(sc, "anything"))
	assert.ErrorIs(t, err, ErrScorerIndeterminate)

	sc.CriteriaWeights = nil
	_, err = scorer.Score(context.Background(), sc, responseFor(sc, "anything"))
	assert.ErrorIs(t, err, ErrScorerIndeterminate)
}

func TestJudgeShareIsCapped(t *testing.T) {
	judge := func(ctx context.Context, sc *models.Scenario, text string) (float64, error) {
		return 100, nil
	}
	scorer, _ := newTestScorer(t, WithJudge(judge, 0.9))
	assert.Equal(t, maxJudgeShare, scorer.judgeShare)

	plain, _ := newTestScorer(t)
	sc := knowledgeScenario(t)
	resp := responseFor(sc, "A middling answer about replication with the number 3 in it.")

	base, err := plain.Score(context.Background(), sc, resp)
	require.NoError(t, err)
	judged, err := scorer.Score(context.Background(), sc, resp)
	require.NoError(t, err)

	assert.Equal(t, 100.0, judged.CriterionBreakdown["llm_judgment"])
	assert.LessOrEqual(t, judged.Overall, base.Overall+maxJudgeShare*100+0.01)
	assert.Greater(t, judged.Overall, base.Overall)
}

func TestJudgeFailureFallsBackToDetectors(t *testing.T) {
	judge := func(ctx context.Context, sc *models.Scenario, text string) (float64, error) {
		return 0, errors.New("provider down")
	}
	withJudge, _ := newTestScorer(t, WithJudge(judge, 0.2))
	plain, _ := newTestScorer(t)
	sc := knowledgeScenario(t)
	resp := responseFor(sc, strongAnswer(sc))

	a, err := withJudge.Score(context.Background(), sc, resp)
	require.NoError(t, err)
	b, err := plain.Score(context.Background(), sc, resp)
	require.NoError(t, err)

	assert.Equal(t, b.Overall, a.Overall)
	assert.NotContains(t, a.CriterionBreakdown, "llm_judgment")
}

func TestDeviationsFlagOutliers(t *testing.T) {
	strengths, weaknesses := deviations(map[string]float64{
		"structure": 90, "coverage": 50, "depth": 50, "code": 10,
	})
	assert.Equal(t, []string{"structure"}, strengths)
	assert.Equal(t, []string{"code"}, weaknesses)

	strengths, weaknesses = deviations(map[string]float64{"a": 60, "b": 60, "c": 60})
	assert.Empty(t, strengths)
	assert.Empty(t, weaknesses)
}

func TestDetectCodeGradesByShape(t *testing.T) {
	fenced := "Intro.\n\n```go\nfunc a() {}\n```\n\nMore.\n\n```\nplain block\n```\n"
	assert.GreaterOrEqual(t, detectCode(nil, fenced), 75.0)
	assert.Less(t, detectCode(nil, "prose only, not a snippet in sight"), 20.0)
	assert.Greater(t, detectCode(nil, fenced), detectCode(nil, "uses `inline` and `ticks` only"))
}
