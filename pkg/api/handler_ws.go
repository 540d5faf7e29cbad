package api

import (
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// wsHandler handles GET /ws/events: upgrades the connection and hands it to
// the events manager, which blocks until the client disconnects. An
// after_id query parameter requests a replay of stored events with a
// greater ID before live traffic.
func (s *Server) wsHandler(c *gin.Context) {
	if s.ws == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody{
			Code:          "unavailable",
			Message:       "WebSocket not available",
			CorrelationID: requestIDFrom(c),
		})
		return
	}

	afterID := int64(-1)
	if raw := c.Query("after_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			s.badRequest(c, "invalid after_id: must be a non-negative integer")
			return
		}
		afterID = parsed
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.wsOriginPatterns,
	})
	if err != nil {
		s.logger.Warn("WebSocket accept failed", "error", err, "request_id", requestIDFrom(c))
		return
	}

	s.ws.HandleConnection(c.Request.Context(), conn, afterID)
}
