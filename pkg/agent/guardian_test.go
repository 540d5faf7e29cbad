package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvlup-dev/ascent/pkg/llm"
	"github.com/lvlup-dev/ascent/pkg/models"
)

type stubProbe struct {
	report *HealthReport
	err    error
}

func (p *stubProbe) Check(context.Context) (*HealthReport, error) {
	return p.report, p.err
}

type stubGate struct {
	permitted bool
	err       error
	calls     int
}

func (g *stubGate) ProposalPermitted(context.Context, models.AgentKind) (bool, error) {
	g.calls++
	return g.permitted, g.err
}

type stubSink struct {
	drafts []models.ProposalDraft
	err    error
}

func (s *stubSink) Propose(_ context.Context, draft models.ProposalDraft) (*models.Proposal, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.drafts = append(s.drafts, draft)
	return &models.Proposal{ID: "prop-1", Title: draft.Title, Status: models.ProposalPending}, nil
}

func quietGateway() Gateway {
	return gatewayFunc(func(context.Context, models.AgentKind, llm.Purpose, string, int) (*llm.Result, error) {
		return &llm.Result{Text: "noted"}, nil
	})
}

func diskIssue() Issue {
	return Issue{
		Summary: "disk usage at 93.0% on /",
		Detail:  "rotate logs and clear temp space",
		Risk:    models.RiskHigh,
		Actions: []models.Action{{Name: "rotate_logs"}, {Name: "clear_tmp"}},
	}
}

func memIssue() Issue {
	return Issue{
		Summary: "memory usage at 91.2%",
		Detail:  "a service restart reclaims it",
		Risk:    models.RiskMedium,
		Actions: []models.Action{{Name: "restart_service"}},
	}
}

func TestGuardianAllClear(t *testing.T) {
	probe := &stubProbe{report: &HealthReport{}}
	gate := &stubGate{permitted: true}
	sink := &stubSink{}
	guardian := NewGuardian(quietGateway(), testClock(), probe, gate, sink)

	result, err := guardian.RunDomainTask(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "health probe: all clear", result.Summary)
	assert.Zero(t, gate.calls)
	assert.Empty(t, sink.drafts)
}

func TestGuardianRaisesProposalForWorstIssue(t *testing.T) {
	probe := &stubProbe{report: &HealthReport{Issues: []Issue{memIssue(), diskIssue()}}}
	gate := &stubGate{permitted: true}
	sink := &stubSink{}
	guardian := NewGuardian(quietGateway(), testClock(), probe, gate, sink)

	result, err := guardian.RunDomainTask(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.drafts, 1)
	draft := sink.drafts[0]
	assert.Equal(t, "disk usage at 93.0% on /", draft.Title)
	assert.Equal(t, models.RiskHigh, draft.Risk)
	assert.Len(t, draft.Actions, 2)

	assert.Contains(t, result.Summary, "proposal prop-1 raised")
	assert.Contains(t, result.Summary, "2 issue(s)")
	assert.Equal(t, "prop-1", result.Details["proposal_id"])
}

func TestGuardianWithholdsProposalOnRecentForm(t *testing.T) {
	probe := &stubProbe{report: &HealthReport{Issues: []Issue{diskIssue()}}}
	gate := &stubGate{permitted: false}
	sink := &stubSink{}
	guardian := NewGuardian(quietGateway(), testClock(), probe, gate, sink)

	result, err := guardian.RunDomainTask(context.Background())
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "proposal withheld on recent form")
	assert.Equal(t, 1, gate.calls)
	assert.Empty(t, sink.drafts)
}

func TestGuardianObserveOnlyWithoutSink(t *testing.T) {
	probe := &stubProbe{report: &HealthReport{Issues: []Issue{memIssue()}}}
	guardian := NewGuardian(quietGateway(), testClock(), probe, nil, nil)

	result, err := guardian.RunDomainTask(context.Background())
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "observe-only")
	assert.Equal(t, "memory usage at 91.2%", result.Details["worst"])
}

func TestGuardianProbeFailureSurfaces(t *testing.T) {
	probe := &stubProbe{err: errors.New("probe offline")}
	guardian := NewGuardian(quietGateway(), testClock(), probe, nil, nil)

	_, err := guardian.RunDomainTask(context.Background())
	assert.ErrorContains(t, err, "probe offline")
}

func TestGuardianSinkFailureSurfaces(t *testing.T) {
	probe := &stubProbe{report: &HealthReport{Issues: []Issue{diskIssue()}}}
	gate := &stubGate{permitted: true}
	sink := &stubSink{err: errors.New("store down")}
	guardian := NewGuardian(quietGateway(), testClock(), probe, gate, sink)

	_, err := guardian.RunDomainTask(context.Background())
	assert.ErrorContains(t, err, "store down")
}

func TestWorstIssuePrefersHighestRisk(t *testing.T) {
	low := Issue{Summary: "low", Risk: models.RiskLow}
	medA := Issue{Summary: "med-a", Risk: models.RiskMedium}
	medB := Issue{Summary: "med-b", Risk: models.RiskMedium}

	assert.Equal(t, "med-a", worstIssue([]Issue{medA, low, medB}).Summary, "ties keep probe order")
	assert.Equal(t, "high", worstIssue([]Issue{low, {Summary: "high", Risk: models.RiskHigh}}).Summary)
}
