package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lvlup-dev/ascent/pkg/database"
	"github.com/lvlup-dev/ascent/pkg/version"
)

const healthCheckTimeout = 5 * time.Second

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// healthzHandler handles GET /healthz. Unauthenticated and limited to the
// platform's own dependencies, so an orchestrator never restarts the
// process over an upstream provider outage.
func (s *Server) healthzHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	checks := make(map[string]healthCheck)
	status := healthStatusHealthy

	if s.db != nil {
		if pool, err := database.Health(ctx, s.db.DB()); err != nil {
			status = healthStatusUnhealthy
			checks["database"] = healthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = healthCheck{Status: healthStatusHealthy, Message: pool.Summary()}
		}
	}
	if s.ws != nil {
		checks["websocket"] = healthCheck{
			Status:  healthStatusHealthy,
			Message: fmt.Sprintf("%d active connections", s.ws.ActiveConnections()),
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, healthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}

// readyzHandler handles GET /readyz with a bare database ping. Without a
// database client (tests, memory store) the process is ready by definition.
func (s *Server) readyzHandler(c *gin.Context) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.DB().PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
