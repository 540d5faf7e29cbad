package agent

import (
	"context"
	"fmt"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/models"
)

// Issue is one problem a health probe found, with the remediation it
// suggests. Actions must name allow-listed capabilities.
type Issue struct {
	Summary string
	Detail  string
	Risk    models.Risk
	Actions []models.Action
}

// HealthReport is a probe pass over the host system.
type HealthReport struct {
	Issues []Issue
}

// Healthy reports whether the probe found nothing to fix.
func (r *HealthReport) Healthy() bool { return len(r.Issues) == 0 }

// HealthProbe inspects the system Guardian watches over.
type HealthProbe interface {
	Check(ctx context.Context) (*HealthReport, error)
}

// ProposalGate decides whether an agent's recent form permits raising
// proposals. The custody eligibility checker satisfies it.
type ProposalGate interface {
	ProposalPermitted(ctx context.Context, kind models.AgentKind) (bool, error)
}

// ProposalSink accepts healing proposals for human review. The proposal
// service satisfies it.
type ProposalSink interface {
	Propose(ctx context.Context, draft models.ProposalDraft) (*models.Proposal, error)
}

// Guardian is the security and self-healing agent: its domain task probes
// system health and, when its recent form permits, turns the worst issue
// into a healing proposal. Nothing is ever executed without approval.
type Guardian struct {
	base
	probe HealthProbe
	gate  ProposalGate
	sink  ProposalSink
}

// NewGuardian builds the self-healing runner. A nil probe falls back to
// the built-in system probe. Gate and sink must both be set for Guardian
// to raise proposals; leaving them nil keeps it observe-only.
func NewGuardian(gateway Gateway, clk clock.Clock, probe HealthProbe, gate ProposalGate, sink ProposalSink) *Guardian {
	if probe == nil {
		probe = NewSystemProbe()
	}
	return &Guardian{
		base:  newBase(models.AgentGuardian, gateway, clk),
		probe: probe,
		gate:  gate,
		sink:  sink,
	}
}

// RunDomainTask probes system health and raises at most one proposal per
// cycle for the highest-risk issue found.
func (g *Guardian) RunDomainTask(ctx context.Context) (*models.DomainResult, error) {
	report, err := g.probe.Check(ctx)
	if err != nil {
		return nil, fmt.Errorf("guardian probe: %w", err)
	}
	if report.Healthy() {
		return &models.DomainResult{Summary: "health probe: all clear"}, nil
	}

	worst := worstIssue(report.Issues)
	details := map[string]any{
		"issues":     len(report.Issues),
		"worst":      worst.Summary,
		"worst_risk": string(worst.Risk),
	}

	if g.gate == nil || g.sink == nil {
		return &models.DomainResult{
			Summary: fmt.Sprintf("health probe: %d issue(s), observe-only (no proposal sink)", len(report.Issues)),
			Details: details,
		}, nil
	}

	permitted, err := g.gate.ProposalPermitted(ctx, g.kind)
	if err != nil {
		return nil, fmt.Errorf("guardian eligibility: %w", err)
	}
	if !permitted {
		return &models.DomainResult{
			Summary: fmt.Sprintf("health probe: %d issue(s), proposal withheld on recent form", len(report.Issues)),
			Details: details,
		}, nil
	}

	proposal, err := g.sink.Propose(ctx, models.ProposalDraft{
		Title:       worst.Summary,
		Description: worst.Detail,
		Risk:        worst.Risk,
		Actions:     worst.Actions,
	})
	if err != nil {
		return nil, fmt.Errorf("guardian proposal: %w", err)
	}

	details["proposal_id"] = proposal.ID
	return &models.DomainResult{
		Summary: fmt.Sprintf("health probe: %d issue(s), proposal %s raised: %s", len(report.Issues), proposal.ID, proposal.Title),
		Details: details,
	}, nil
}

// worstIssue picks the highest-risk issue, preserving probe order on ties.
func worstIssue(issues []Issue) Issue {
	worst := issues[0]
	for _, issue := range issues[1:] {
		if riskRank(issue.Risk) > riskRank(worst.Risk) {
			worst = issue
		}
	}
	return worst
}

func riskRank(r models.Risk) int {
	switch r {
	case models.RiskHigh:
		return 2
	case models.RiskMedium:
		return 1
	default:
		return 0
	}
}
