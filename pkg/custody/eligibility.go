package custody

import (
	"context"
	"fmt"
	"time"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

// eligibilityWindow is how many recent scores the permission queries look at.
const eligibilityWindow = 5

// proposalFreshness is how recent an agent's latest test must be before it
// may raise healing proposals.
const proposalFreshness = 24 * time.Hour

// Eligibility answers permission questions from an agent's recent scoring
// history.
type Eligibility struct {
	scores store.ScoreStore
	clk    clock.Clock
}

// NewEligibility creates an eligibility checker over the score history.
func NewEligibility(scores store.ScoreStore, clk clock.Clock) *Eligibility {
	return &Eligibility{scores: scores, clk: clk}
}

// LevelUpPermitted reports whether the agent's recent form supports a level
// advance: at least 80% of the last five tests passed and at most two
// consecutive failures. An agent with no history cannot level up.
func (e *Eligibility) LevelUpPermitted(ctx context.Context, kind models.AgentKind) (bool, error) {
	recent, err := e.scores.Recent(ctx, kind, eligibilityWindow)
	if err != nil {
		return false, fmt.Errorf("loading recent scores for %s: %w", kind, err)
	}
	return levelUpAllowed(recent), nil
}

// ProposalPermitted reports whether the agent may raise healing proposals:
// at least one recent pass, at most three consecutive failures, and a test
// taken within the last 24 hours.
func (e *Eligibility) ProposalPermitted(ctx context.Context, kind models.AgentKind) (bool, error) {
	recent, err := e.scores.Recent(ctx, kind, eligibilityWindow)
	if err != nil {
		return false, fmt.Errorf("loading recent scores for %s: %w", kind, err)
	}
	if len(recent) == 0 {
		return false, nil
	}
	anyPass := false
	for _, s := range recent {
		if s.Passed {
			anyPass = true
			break
		}
	}
	if !anyPass {
		return false, nil
	}
	if consecutiveFailures(recent) > 3 {
		return false, nil
	}
	latest := recent[0].CreatedAt
	return e.clk.Now().Sub(latest) <= proposalFreshness, nil
}
