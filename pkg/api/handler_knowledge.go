package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

const (
	defaultKnowledgeLimit = 50
	maxKnowledgeLimit     = 500
)

// listKnowledgeHandler handles GET /api/knowledge, ordered by effectiveness
// then recency.
func (s *Server) listKnowledgeHandler(c *gin.Context) {
	filter := store.KnowledgeFilter{Limit: defaultKnowledgeLimit}

	if v := c.Query("owner"); v != "" {
		kind := models.AgentKind(v)
		if !kind.IsValid() {
			s.badRequest(c, "invalid owner: must be imperium, guardian, sandbox, or conquest")
			return
		}
		filter.Owner = &kind
	}
	if v := c.Query("label"); v != "" {
		label := models.PatternLabel(v)
		if !label.IsValid() {
			s.badRequest(c, "invalid label: must be success or failure")
			return
		}
		filter.Label = &label
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxKnowledgeLimit {
			s.badRequest(c, "invalid limit: must be an integer between 1 and 500")
			return
		}
		filter.Limit = n
	}

	patterns, err := s.st.Knowledge().Query(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, knowledgeResponse{Patterns: patterns})
}
