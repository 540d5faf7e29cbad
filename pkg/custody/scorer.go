package custody

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/models"
)

// maxJudgeShare caps how much of the overall score the stochastic LLM
// detector may contribute. Everything else is deterministic.
const maxJudgeShare = 0.20

// JudgeFunc is the optional LLM-backed detector: it grades a response 0-100.
// Failures fall back to the deterministic detectors alone.
type JudgeFunc func(ctx context.Context, scenario *models.Scenario, responseText string) (float64, error)

// ScorerOption customizes a Scorer.
type ScorerOption func(*Scorer)

// WithJudge enables the LLM detector with the given overall share. The
// share is clamped to maxJudgeShare.
func WithJudge(judge JudgeFunc, share float64) ScorerOption {
	return func(s *Scorer) {
		s.judge = judge
		s.judgeShare = math.Min(math.Max(share, 0), maxJudgeShare)
	}
}

// Scorer grades responses against a scenario's criteria. Five deterministic
// detectors cover the catalog criteria: structure, coverage, code, depth,
// and the per-category marker terms. Same scenario and response always grade
// the same, apart from the optional bounded LLM judgment.
type Scorer struct {
	cfg        *config.Config
	clk        clock.Clock
	judge      JudgeFunc
	judgeShare float64
	logger     *slog.Logger
}

// NewScorer creates a scorer using the configured pass thresholds.
func NewScorer(cfg *config.Config, clk clock.Clock, opts ...ScorerOption) *Scorer {
	s := &Scorer{
		cfg:    cfg,
		clk:    clk,
		logger: slog.Default().With("component", "custody"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// detectorFunc grades one criterion 0-100 from the scenario and response.
type detectorFunc func(sc *models.Scenario, text string) float64

// detectors maps criterion names to their detector. The per-category marker
// criteria all share the marker detector; it reads the category's term list
// from the catalog.
var detectors = map[string]detectorFunc{
	"structure": detectStructure,
	"coverage":  detectCoverage,
	"depth":     detectDepth,
	"code":      detectCode,

	"accuracy":       detectMarkers,
	"correctness":    detectMarkers,
	"risk_awareness": detectMarkers,
	"efficiency":     detectMarkers,
	"novelty":        detectMarkers,
	"reflection":     detectMarkers,
	"collaboration":  detectMarkers,
	"rigor":          detectMarkers,
}

// Score grades a response. The overall is the weight-normalized mean of the
// applicable detector sub-scores; strengths and weaknesses are the criteria
// deviating at least one standard deviation from the mean sub-score. A
// scenario whose criteria match no detector cannot be graded honestly and
// returns ErrScorerIndeterminate.
func (s *Scorer) Score(ctx context.Context, scenario *models.Scenario, response *models.Response) (*models.Score, error) {
	if len(scenario.CriteriaWeights) == 0 {
		return nil, fmt.Errorf("%w: scenario %s has no criteria", ErrScorerIndeterminate, scenario.ID)
	}

	breakdown := make(map[string]float64, len(scenario.CriteriaWeights)+1)
	var weightSum, weighted float64
	for name, weight := range scenario.CriteriaWeights {
		detect, ok := detectors[name]
		if !ok {
			s.logger.Warn("No detector for criterion", "criterion", name, "scenario_id", scenario.ID)
			continue
		}
		sub := clampScore(detect(scenario, response.Text))
		breakdown[name] = round2(sub)
		weighted += sub * weight
		weightSum += weight
	}
	if weightSum == 0 {
		return nil, fmt.Errorf("%w: no detector applies to scenario %s", ErrScorerIndeterminate, scenario.ID)
	}
	overall := weighted / weightSum

	strengths, weaknesses := deviations(breakdown)

	if s.judge != nil && s.judgeShare > 0 {
		judged, err := s.judge(ctx, scenario, response.Text)
		if err != nil {
			s.logger.Warn("LLM judgment unavailable, using deterministic detectors only",
				"scenario_id", scenario.ID, "error", err)
		} else {
			judged = clampScore(judged)
			overall = (1-s.judgeShare)*overall + s.judgeShare*judged
			breakdown["llm_judgment"] = round2(judged)
		}
	}

	overall = round2(overall)
	threshold := s.cfg.PassThreshold(string(scenario.Category))
	passed := overall >= threshold

	return &models.Score{
		ResponseID:         response.ID,
		Overall:            overall,
		Passed:             passed,
		CriterionBreakdown: breakdown,
		Feedback:           buildFeedback(overall, threshold, passed, strengths, weaknesses),
		Strengths:          strengths,
		Weaknesses:         weaknesses,
		CreatedAt:          s.clk.Now().UTC(),
	}, nil
}

// deviations returns the criteria at least one standard deviation above
// (strengths) or below (weaknesses) the mean sub-score.
func deviations(breakdown map[string]float64) (strengths, weaknesses []string) {
	if len(breakdown) < 2 {
		return nil, nil
	}
	var sum float64
	for _, v := range breakdown {
		sum += v
	}
	mean := sum / float64(len(breakdown))
	var variance float64
	for _, v := range breakdown {
		variance += (v - mean) * (v - mean)
	}
	sigma := math.Sqrt(variance / float64(len(breakdown)))
	if sigma == 0 {
		return nil, nil
	}
	for name, v := range breakdown {
		switch {
		case v >= mean+sigma:
			strengths = append(strengths, name)
		case v <= mean-sigma:
			weaknesses = append(weaknesses, name)
		}
	}
	sort.Strings(strengths)
	sort.Strings(weaknesses)
	return strengths, weaknesses
}

func buildFeedback(overall, threshold float64, passed bool, strengths, weaknesses []string) string {
	verdict := "failed"
	if passed {
		verdict = "passed"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s with %.1f against a threshold of %.0f", verdict, overall, threshold)
	if len(strengths) > 0 {
		fmt.Fprintf(&b, "; strong on %s", strings.Join(strengths, ", "))
	}
	if len(weaknesses) > 0 {
		fmt.Fprintf(&b, "; weak on %s", strings.Join(weaknesses, ", "))
	}
	b.WriteString(".")
	return b.String()
}

func clampScore(v float64) float64 {
	return math.Min(math.Max(v, 0), 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var (
	bulletLine  = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+\S`)
	headingLine = regexp.MustCompile(`(?m)^\s*(?:#{1,6}\s+\S|\S[^\n]{0,60}:\s*$)`)
	numberToken = regexp.MustCompile(`\b\d+(?:\.\d+)?%?`)
	wordToken   = regexp.MustCompile(`[a-zA-Z][a-zA-Z_\-]{1,}`)
	indentedLn  = regexp.MustCompile(`(?m)^(?:\t| {4,})\S`)
	fenceOpen   = regexp.MustCompile("(?m)^```[a-zA-Z]+")
)

// detectStructure rewards organized responses: enough substance, paragraph
// breaks, lists, and headings.
func detectStructure(_ *models.Scenario, text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	score := 10.0
	if words >= 40 {
		score += 15
	}
	if words >= 120 {
		score += 15
	}
	paragraphs := 0
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}
	if paragraphs >= 2 {
		score += 20
	}
	if paragraphs >= 4 {
		score += 10
	}
	if len(bulletLine.FindAllString(text, 3)) >= 2 {
		score += 15
	}
	if headingLine.MatchString(text) {
		score += 15
	}
	return score
}

// detectCoverage measures how much of the scenario's significant vocabulary
// the response engages with.
func detectCoverage(sc *models.Scenario, text string) float64 {
	terms := significantTerms(sc.Prompt, 24)
	if len(terms) == 0 {
		return 50
	}
	lower := strings.ToLower(text)
	covered := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			covered++
		}
	}
	return 100 * float64(covered) / float64(len(terms))
}

// detectDepth rewards quantified, information-dense writing: numbers, long
// technical words, and varied vocabulary.
func detectDepth(_ *models.Scenario, text string) float64 {
	words := wordToken.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return 0
	}
	numbers := len(numberToken.FindAllString(text, 12))
	score := float64(min(numbers, 10)) * 3

	longWords := 0
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) >= 8 {
			longWords++
		}
		unique[w] = struct{}{}
	}
	longDensity := float64(longWords) / float64(len(words))
	score += math.Min(longDensity*250, 40)

	uniqueRatio := float64(len(unique)) / float64(len(words))
	score += uniqueRatio * 30
	return score
}

// detectCode grades the presence and shape of code in the response.
func detectCode(_ *models.Scenario, text string) float64 {
	fences := strings.Count(text, "```") / 2
	inline := strings.Count(text, "`") - strings.Count(text, "```")*3
	indented := len(indentedLn.FindAllString(text, 12))

	switch {
	case fences >= 2:
		score := 75.0
		if fenceOpen.MatchString(text) {
			score += 10
		}
		if indented+fences*3 > 8 {
			score += 15
		}
		return score
	case fences == 1:
		score := 60.0
		if fenceOpen.MatchString(text) {
			score += 10
		}
		return score
	case indented >= 3:
		return 45
	case inline >= 2:
		return 35
	default:
		return 15
	}
}

// detectMarkers counts how many of the category's marker terms the response
// touches. This is the category-specific detector behind accuracy,
// correctness, risk_awareness, and the other named criteria.
func detectMarkers(sc *models.Scenario, text string) float64 {
	markers := markersFor(sc.Category)
	if len(markers) == 0 {
		return 50
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			hits++
		}
	}
	return 100 * float64(hits) / float64(len(markers))
}

// promptStopwords excludes envelope boilerplate and filler from coverage
// terms.
var promptStopwords = map[string]struct{}{
	"about": {}, "against": {}, "around": {}, "because": {}, "before": {},
	"between": {}, "could": {}, "every": {}, "inside": {}, "platform": {},
	"should": {}, "their": {}, "there": {}, "these": {}, "thing": {},
	"those": {}, "through": {}, "where": {}, "which": {}, "while": {},
	"working": {}, "would": {}, "write": {}, "your": {},
}

// significantTerms extracts up to max lowercase terms of length >= 5 from
// the prompt, in first-appearance order.
func significantTerms(prompt string, max int) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, w := range wordToken.FindAllString(strings.ToLower(prompt), -1) {
		if len(w) < 5 {
			continue
		}
		if _, stop := promptStopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
		if len(terms) >= max {
			break
		}
	}
	return terms
}
