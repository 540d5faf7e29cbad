package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvlup-dev/ascent/pkg/models"
)

// fileProposal goes through the service, not HTTP; Guardian files proposals
// internally and the API only decides and executes them.
func fileProposal(t *testing.T, fx *apiFixture) *models.Proposal {
	t.Helper()
	p, err := fx.proposals.Propose(context.Background(), models.ProposalDraft{
		Title:       "Rotate bloated logs",
		Description: "disk pressure on /var/log",
		Risk:        models.RiskLow,
		Actions:     []models.Action{{Name: "rotate_logs"}, {Name: "clear_tmp"}},
	})
	require.NoError(t, err)
	return p
}

func TestListProposalsEmpty(t *testing.T) {
	fx := newAPIFixture(t, nil)

	rec := fx.request(t, http.MethodGet, "/api/proposals", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp proposalListResponse
	decode(t, rec, &resp)
	assert.Empty(t, resp.Proposals)
}

func TestListProposalsFiltersByStatus(t *testing.T) {
	fx := newAPIFixture(t, nil)
	first := fileProposal(t, fx)
	fileProposal(t, fx)

	rec := fx.request(t, http.MethodPost, "/api/proposals/"+first.ID+"/approve", gin.H{"approver": "ops-alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.request(t, http.MethodGet, "/api/proposals?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending proposalListResponse
	decode(t, rec, &pending)
	require.Len(t, pending.Proposals, 1)

	rec = fx.request(t, http.MethodGet, "/api/proposals?status=approved", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var approved proposalListResponse
	decode(t, rec, &approved)
	require.Len(t, approved.Proposals, 1)
	assert.Equal(t, first.ID, approved.Proposals[0].ID)
}

func TestListProposalsRejectsUnknownStatus(t *testing.T) {
	fx := newAPIFixture(t, nil)

	rec := fx.request(t, http.MethodGet, "/api/proposals?status=maybe", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeError(t, rec).Code)
}

func TestApproveProposal(t *testing.T) {
	fx := newAPIFixture(t, nil)
	p := fileProposal(t, fx)

	rec := fx.request(t, http.MethodPost, "/api/proposals/"+p.ID+"/approve", gin.H{"approver": "ops-alice"})

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Proposal
	decode(t, rec, &got)
	assert.Equal(t, models.ProposalApproved, got.Status)
	assert.Equal(t, "ops-alice", got.DecidedBy)
	require.NotNil(t, got.DecidedAt)
}

func TestRejectProposal(t *testing.T) {
	fx := newAPIFixture(t, nil)
	p := fileProposal(t, fx)

	rec := fx.request(t, http.MethodPost, "/api/proposals/"+p.ID+"/reject", gin.H{
		"approver": "ops-bob",
		"reason":   "too risky during release week",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Proposal
	decode(t, rec, &got)
	assert.Equal(t, models.ProposalRejected, got.Status)
	assert.Equal(t, "ops-bob", got.DecidedBy)
}

func TestDecisionRequiresApprover(t *testing.T) {
	fx := newAPIFixture(t, nil)
	p := fileProposal(t, fx)

	rec := fx.request(t, http.MethodPost, "/api/proposals/"+p.ID+"/approve", gin.H{})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeError(t, rec).Code)
}

func TestDecideUnknownProposal(t *testing.T) {
	fx := newAPIFixture(t, nil)

	rec := fx.request(t, http.MethodPost, "/api/proposals/no-such-id/approve", gin.H{"approver": "ops-alice"})

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)
}

func TestDoubleDecisionConflicts(t *testing.T) {
	fx := newAPIFixture(t, nil)
	p := fileProposal(t, fx)

	rec := fx.request(t, http.MethodPost, "/api/proposals/"+p.ID+"/approve", gin.H{"approver": "ops-alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.request(t, http.MethodPost, "/api/proposals/"+p.ID+"/reject", gin.H{"approver": "ops-bob"})

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeError(t, rec).Code)
}

func TestExecuteApprovedProposal(t *testing.T) {
	fx := newAPIFixture(t, nil)
	p := fileProposal(t, fx)

	rec := fx.request(t, http.MethodPost, "/api/proposals/"+p.ID+"/approve", gin.H{"approver": "ops-alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.request(t, http.MethodPost, "/api/proposals/"+p.ID+"/execute", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Proposal
	decode(t, rec, &got)
	assert.Equal(t, models.ProposalExecuted, got.Status)
	require.Len(t, got.ExecutionResult, 2)
	for _, r := range got.ExecutionResult {
		assert.True(t, r.OK)
	}
}

func TestExecuteRequiresApproval(t *testing.T) {
	fx := newAPIFixture(t, nil)
	p := fileProposal(t, fx)

	rec := fx.request(t, http.MethodPost, "/api/proposals/"+p.ID+"/execute", nil)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestExecuteTwiceConflicts(t *testing.T) {
	fx := newAPIFixture(t, nil)
	p := fileProposal(t, fx)

	rec := fx.request(t, http.MethodPost, "/api/proposals/"+p.ID+"/approve", gin.H{"approver": "ops-alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = fx.request(t, http.MethodPost, "/api/proposals/"+p.ID+"/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = fx.request(t, http.MethodPost, "/api/proposals/"+p.ID+"/execute", nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeError(t, rec).Code)
}
