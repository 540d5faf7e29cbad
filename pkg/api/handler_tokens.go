package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

// tokenUsageHandler handles GET /api/tokens/usage with optional agent,
// provider, and month filters.
func (s *Server) tokenUsageHandler(c *gin.Context) {
	var filter store.UsageFilter

	if v := c.Query("agent"); v != "" {
		kind := models.AgentKind(v)
		if !kind.IsValid() {
			s.badRequest(c, "invalid agent kind: must be imperium, guardian, sandbox, or conquest")
			return
		}
		filter.AgentKind = kind
	}
	if v := c.Query("provider"); v != "" {
		provider := models.Provider(v)
		if !provider.IsValid() {
			s.badRequest(c, "invalid provider: must be primary or secondary")
			return
		}
		filter.Provider = provider
	}
	if v := c.Query("month"); v != "" {
		if _, err := time.Parse("2006-01", v); err != nil {
			s.badRequest(c, "invalid month: must be YYYY-MM")
			return
		}
		filter.Month = v
	}

	aggregates, err := s.tokens.Usage(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, usageResponse{Aggregates: aggregates})
}

// tokenResetHandler handles POST /api/tokens/reset: archives the current
// month's ledger rows so aggregates start from zero.
func (s *Server) tokenResetHandler(c *gin.Context) {
	archived, err := s.tokens.Reset(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.logger.Info("Token ledger reset",
		"archived_entries", archived,
		"request_id", requestIDFrom(c),
	)
	c.Status(http.StatusNoContent)
}
