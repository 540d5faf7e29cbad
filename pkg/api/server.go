// Package api is the HTTP and WebSocket surface of the platform. Handlers
// stay thin: bind, validate, call a service, map the error. Domain rules
// live in the services; the only logic here is translation.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/custody"
	"github.com/lvlup-dev/ascent/pkg/database"
	"github.com/lvlup-dev/ascent/pkg/events"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

// CycleScheduler drives manual cycle control. *scheduler.Scheduler
// satisfies it.
type CycleScheduler interface {
	Trigger(ctx context.Context, kind models.AgentKind, opts custody.RunOptions) (string, error)
	RunCustodyTest(ctx context.Context, kind models.AgentKind, category models.Category, complexity models.Complexity) (*custody.CycleSummary, error)
	Pause(ctx context.Context, kind models.AgentKind) error
	Resume(ctx context.Context, kind models.AgentKind) error
}

// ProposalWorkflow is the human side of the approval loop. *proposal.Service
// satisfies it.
type ProposalWorkflow interface {
	Approve(ctx context.Context, id, approver string) (*models.Proposal, error)
	Reject(ctx context.Context, id, approver, reason string) (*models.Proposal, error)
	Execute(ctx context.Context, id string) (*models.Proposal, error)
	List(ctx context.Context, status *models.ProposalStatus) ([]*models.Proposal, error)
}

// TokenLedger serves spend aggregates. *ledger.Ledger satisfies it.
type TokenLedger interface {
	Usage(ctx context.Context, filter store.UsageFilter) ([]*models.TokenAggregate, error)
	Reset(ctx context.Context) (int64, error)
}

// SourceDirectory manages the knowledge source set. *source.Registry
// satisfies it.
type SourceDirectory interface {
	Add(rawURL string, trusted bool) (*models.SourceInfo, error)
	Remove(rawURL string) error
	List() []models.SourceInfo
}

// Server wires the platform services to HTTP handlers.
type Server struct {
	cfg       *config.Config
	st        store.Store
	scheduler CycleScheduler
	proposals ProposalWorkflow
	tokens    TokenLedger
	sources   SourceDirectory
	ws        *events.ConnectionManager
	db        *database.Client
	logger    *slog.Logger

	wsOriginPatterns []string
	httpServer       *http.Server
}

// NewServer builds the server. ws may be nil, in which case /ws/events
// answers 503; everything else is required.
func NewServer(cfg *config.Config, st store.Store, scheduler CycleScheduler, proposals ProposalWorkflow, tokens TokenLedger, sources SourceDirectory, ws *events.ConnectionManager) *Server {
	if cfg == nil {
		panic("api: config must not be nil")
	}
	if st == nil {
		panic("api: store must not be nil")
	}
	if scheduler == nil {
		panic("api: scheduler must not be nil")
	}
	if proposals == nil {
		panic("api: proposal workflow must not be nil")
	}
	if tokens == nil {
		panic("api: token ledger must not be nil")
	}
	if sources == nil {
		panic("api: source directory must not be nil")
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		st:        st,
		scheduler: scheduler,
		proposals: proposals,
		tokens:    tokens,
		sources:   sources,
		ws:        ws,
		logger:    slog.Default().With("component", "api"),
	}
	s.wsOriginPatterns = buildOriginPatterns(cfg.Server.AllowedOrigins)

	if len(cfg.Auth.Tokens) == 0 {
		s.logger.Warn("No API tokens configured, authentication is disabled",
			"env", cfg.Auth.BearerTokensEnv)
	}
	return s
}

// SetDBClient attaches the database client used by the health endpoints.
// Optional so tests can run against the memory store.
func (s *Server) SetDBClient(db *database.Client) {
	s.db = db
}

// Router assembles the gin engine with middleware and all routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), accessLog(s.logger), recovery(s.logger), securityHeaders(), corsAllowlist(s.cfg.Server.AllowedOrigins))

	// Health endpoints skip auth so orchestrator probes need no secret.
	r.GET("/healthz", s.healthzHandler)
	r.GET("/readyz", s.readyzHandler)

	api := r.Group("/api", bearerAuth(s.cfg.Auth.Tokens, false))
	{
		api.GET("/agents/status", s.agentStatusHandler)
		api.POST("/agents/:kind/pause", s.pauseAgentHandler)
		api.POST("/agents/:kind/resume", s.resumeAgentHandler)
		api.POST("/agents/:kind/trigger", s.triggerAgentHandler)

		api.POST("/custody/test", s.custodyTestHandler)
		api.GET("/custody/analytics", s.custodyAnalyticsHandler)

		api.GET("/proposals", s.listProposalsHandler)
		api.POST("/proposals/:id/approve", s.approveProposalHandler)
		api.POST("/proposals/:id/reject", s.rejectProposalHandler)
		api.POST("/proposals/:id/execute", s.executeProposalHandler)

		api.GET("/tokens/usage", s.tokenUsageHandler)
		api.POST("/tokens/reset", s.tokenResetHandler)

		api.GET("/sources", s.listSourcesHandler)
		api.POST("/sources", s.addSourceHandler)
		api.DELETE("/sources", s.removeSourceHandler)

		api.GET("/knowledge", s.listKnowledgeHandler)
	}

	// Browser WebSocket clients cannot set headers, so this route also
	// accepts the token as a query parameter.
	r.GET("/ws/events", bearerAuth(s.cfg.Auth.Tokens, true), s.wsHandler)

	return r
}

// Start serves HTTP on the configured address, blocking until Shutdown or
// failure. Returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	s.logger.Info("HTTP server listening", "addr", s.cfg.Server.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// buildOriginPatterns converts configured origins into host patterns for the
// WebSocket accept check. Localhost is always allowed.
func buildOriginPatterns(origins []string) []string {
	patterns := []string{"localhost:*", "127.0.0.1:*"}
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
