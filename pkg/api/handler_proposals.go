package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lvlup-dev/ascent/pkg/models"
)

// listProposalsHandler handles GET /api/proposals, newest first, optionally
// filtered by status.
func (s *Server) listProposalsHandler(c *gin.Context) {
	var status *models.ProposalStatus
	if v := c.Query("status"); v != "" {
		parsed := models.ProposalStatus(v)
		if !parsed.IsValid() {
			s.badRequest(c, "invalid status: must be pending, approved, rejected, executed, or failed")
			return
		}
		status = &parsed
	}

	proposals, err := s.proposals.List(c.Request.Context(), status)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, proposalListResponse{Proposals: proposals})
}

// approveProposalHandler handles POST /api/proposals/:id/approve.
func (s *Server) approveProposalHandler(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	p, err := s.proposals.Approve(c.Request.Context(), c.Param("id"), req.Approver)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// rejectProposalHandler handles POST /api/proposals/:id/reject.
func (s *Server) rejectProposalHandler(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	p, err := s.proposals.Reject(c.Request.Context(), c.Param("id"), req.Approver, req.Reason)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// executeProposalHandler handles POST /api/proposals/:id/execute. Takes no
// body; the proposal must already be approved.
func (s *Server) executeProposalHandler(c *gin.Context) {
	p, err := s.proposals.Execute(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
