package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lvlup-dev/ascent/pkg/custody"
	"github.com/lvlup-dev/ascent/pkg/models"
)

// agentStatusHandler handles GET /api/agents/status.
func (s *Server) agentStatusHandler(c *gin.Context) {
	rows, err := s.st.Metrics().All(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	resp := agentStatusResponse{Agents: make([]agentStatus, 0, len(rows))}
	for _, m := range rows {
		resp.Agents = append(resp.Agents, agentStatus{
			Kind:          m.Kind,
			Status:        m.Status,
			Level:         m.Level,
			XP:            m.XP,
			LearningScore: m.LearningScore,
			LastCycleAt:   m.LastCycleAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// pauseAgentHandler handles POST /api/agents/:kind/pause.
func (s *Server) pauseAgentHandler(c *gin.Context) {
	kind, ok := s.agentKindParam(c)
	if !ok {
		return
	}
	if err := s.scheduler.Pause(c.Request.Context(), kind); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// resumeAgentHandler handles POST /api/agents/:kind/resume.
func (s *Server) resumeAgentHandler(c *gin.Context) {
	kind, ok := s.agentKindParam(c)
	if !ok {
		return
	}
	if err := s.scheduler.Resume(c.Request.Context(), kind); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// triggerAgentHandler handles POST /api/agents/:kind/trigger. The cycle is
// queued and runs on the scheduler's own context, so it survives this
// request ending.
func (s *Server) triggerAgentHandler(c *gin.Context) {
	kind, ok := s.agentKindParam(c)
	if !ok {
		return
	}
	cycleID, err := s.scheduler.Trigger(c.Request.Context(), kind, custody.RunOptions{})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, triggerResponse{CycleID: cycleID})
}

// agentKindParam validates the :kind path parameter, answering 400 itself
// when the kind is unknown.
func (s *Server) agentKindParam(c *gin.Context) (models.AgentKind, bool) {
	kind := models.AgentKind(c.Param("kind"))
	if !kind.IsValid() {
		s.badRequest(c, "invalid agent kind: must be imperium, guardian, sandbox, or conquest")
		return "", false
	}
	return kind, true
}
