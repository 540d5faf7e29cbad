package learning

import (
	"context"
	"errors"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

// patternScanLimit caps full-table pattern scans done for feedback
// matching.
const patternScanLimit = 500

func queryAll() store.KnowledgeFilter {
	return store.KnowledgeFilter{Limit: patternScanLimit}
}

// Verdict is a human judgment on an agent's output.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
	VerdictEdited   Verdict = "edited"
)

// ErrInvalidVerdict is returned for verdicts outside the known set.
var ErrInvalidVerdict = errors.New("learning: invalid verdict")

// feedbackDeltas maps verdicts to effectiveness adjustments. Edits count
// as weak approval: the output was usable but needed work.
var feedbackDeltas = map[Verdict]float64{
	VerdictApproved: 0.10,
	VerdictRejected: -0.10,
	VerdictEdited:   0.05,
}

// feedbackBaseline is the starting effectiveness for patterns minted by
// positive feedback on outputs the loop never promoted on its own.
const feedbackBaseline = 0.5

// FeedbackRef names the output being judged. Exactly one field should be
// set; when both are, the response wins.
type FeedbackRef struct {
	ResponseID string
	ProposalID string
}

func (r FeedbackRef) empty() bool {
	return r.ResponseID == "" && r.ProposalID == ""
}

// ApplyFeedback adjusts the effectiveness of every pattern referencing
// the judged output and returns how many were touched. Positive verdicts
// with no matching pattern mint a fresh one, so human approval is never
// lost just because the score sat in the indecisive band.
func (l *Loop) ApplyFeedback(ctx context.Context, ref FeedbackRef, verdict Verdict) (int, error) {
	delta, ok := feedbackDeltas[verdict]
	if !ok {
		return 0, ErrInvalidVerdict
	}
	if ref.empty() {
		return 0, errors.New("learning: feedback ref names nothing")
	}

	matches, err := l.findPatterns(ctx, ref)
	if err != nil {
		return 0, err
	}

	adjusted := 0
	for _, pattern := range matches {
		if _, err := l.patterns.AdjustEffectiveness(ctx, pattern.ID, delta); err != nil {
			return adjusted, err
		}
		adjusted++
	}
	if adjusted > 0 {
		l.logger.Info("feedback applied",
			"verdict", verdict, "delta", delta, "patterns", adjusted)
		return adjusted, nil
	}

	if delta <= 0 {
		return 0, nil
	}
	if err := l.mintFromFeedback(ctx, ref, verdict, delta); err != nil {
		return 0, err
	}
	return 1, nil
}

// findPatterns scans stored patterns for ones whose features reference
// the judged output. Pattern volume is bounded by retention and transfer
// dedup, so a capped scan beats adding a feature index to every store.
func (l *Loop) findPatterns(ctx context.Context, ref FeedbackRef) ([]*models.KnowledgePattern, error) {
	all, err := l.patterns.Query(ctx, queryAll())
	if err != nil {
		return nil, err
	}
	var matches []*models.KnowledgePattern
	for _, pattern := range all {
		if ref.ResponseID != "" && featureString(pattern.Features, "response_id") == ref.ResponseID {
			matches = append(matches, pattern)
			continue
		}
		if ref.ProposalID != "" && featureString(pattern.Features, "proposal_id") == ref.ProposalID {
			matches = append(matches, pattern)
		}
	}
	return matches, nil
}

func (l *Loop) mintFromFeedback(ctx context.Context, ref FeedbackRef, verdict Verdict, delta float64) error {
	owner, features, err := l.resolveOwner(ctx, ref)
	if err != nil {
		return err
	}
	features["source"] = "feedback"
	features["verdict"] = string(verdict)

	pattern := &models.KnowledgePattern{
		OwnerKind:     owner,
		Label:         models.PatternSuccess,
		Features:      features,
		Effectiveness: clamp01(feedbackBaseline + delta),
	}
	stored, err := l.patterns.Record(ctx, pattern)
	if err != nil {
		return err
	}
	l.logger.Info("pattern minted from feedback",
		"pattern_id", stored.ID, "agent_kind", owner, "verdict", verdict)
	return nil
}

// resolveOwner attributes feedback to an agent. Responses carry their
// agent kind; proposals are always Guardian's.
func (l *Loop) resolveOwner(ctx context.Context, ref FeedbackRef) (models.AgentKind, map[string]any, error) {
	if ref.ResponseID != "" {
		response, err := l.st.Responses().Get(ctx, ref.ResponseID)
		if err != nil {
			return "", nil, err
		}
		return response.AgentKind, map[string]any{
			"response_id": ref.ResponseID,
			"scenario_id": response.ScenarioID,
		}, nil
	}
	return models.AgentGuardian, map[string]any{
		"proposal_id": ref.ProposalID,
	}, nil
}

func featureString(features models.PatternFeatures, key string) string {
	v, ok := features[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
