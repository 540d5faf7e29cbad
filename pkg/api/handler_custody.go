package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lvlup-dev/ascent/pkg/models"
)

// custodyTestHandler handles POST /api/custody/test. Unlike trigger, the
// cycle runs synchronously within the request so the caller sees the
// outcome.
func (s *Server) custodyTestHandler(c *gin.Context) {
	var req custodyTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	kind := models.AgentKind(req.Kind)
	if !kind.IsValid() {
		s.badRequest(c, "invalid agent kind: must be imperium, guardian, sandbox, or conquest")
		return
	}

	var category models.Category
	if req.Category != "" {
		category = models.Category(req.Category)
		if !category.IsValid() {
			s.badRequest(c, "invalid category: "+req.Category)
			return
		}
	}

	var complexity models.Complexity
	if req.Complexity != "" {
		complexity = models.Complexity(req.Complexity)
		if !complexity.IsValid() {
			s.badRequest(c, "invalid complexity: "+req.Complexity)
			return
		}
	}

	summary, err := s.scheduler.RunCustodyTest(c.Request.Context(), kind, category, complexity)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, custodyTestResponse{
		ScenarioID: summary.ScenarioID,
		CycleID:    summary.CycleID,
		Outcome:    summary.Outcome,
		Overall:    summary.Overall,
		Passed:     summary.Passed,
	})
}

// custodyAnalyticsHandler handles GET /api/custody/analytics.
func (s *Server) custodyAnalyticsHandler(c *gin.Context) {
	analytics, err := s.st.Scores().Analytics(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}
