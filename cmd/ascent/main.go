// Ascent orchestrator server: runs the agent cycle scheduler, the learning
// loop, and the HTTP/WebSocket API over one Postgres store.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lvlup-dev/ascent/pkg/agent"
	"github.com/lvlup-dev/ascent/pkg/api"
	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/custody"
	"github.com/lvlup-dev/ascent/pkg/database"
	"github.com/lvlup-dev/ascent/pkg/events"
	"github.com/lvlup-dev/ascent/pkg/knowledge"
	"github.com/lvlup-dev/ascent/pkg/learning"
	"github.com/lvlup-dev/ascent/pkg/ledger"
	"github.com/lvlup-dev/ascent/pkg/llm"
	"github.com/lvlup-dev/ascent/pkg/llm/anthropic"
	"github.com/lvlup-dev/ascent/pkg/llm/openai"
	"github.com/lvlup-dev/ascent/pkg/masking"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/proposal"
	"github.com/lvlup-dev/ascent/pkg/retention"
	"github.com/lvlup-dev/ascent/pkg/scheduler"
	"github.com/lvlup-dev/ascent/pkg/source"
	"github.com/lvlup-dev/ascent/pkg/store/postgres"
	"github.com/lvlup-dev/ascent/pkg/version"
)

// Shutdown budgets, applied in reverse start order.
const (
	httpShutdownBudget      = 10 * time.Second
	schedulerShutdownBudget = 5 * time.Second
	listenerShutdownBudget  = 2 * time.Second
	wsWriteTimeout          = 10 * time.Second
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// setupLogging installs the process-wide text handler honoring LOG_LEVEL.
func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// stopWithBudget runs stop in the background and waits at most budget.
func stopWithBudget(name string, budget time.Duration, stop func()) {
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Stopped " + name)
	case <-time.After(budget):
		slog.Warn("Shutdown budget exceeded, abandoning " + name)
	}
}

func main() {
	configPath := flag.String("config",
		getEnv("ASCENT_CONFIG", ""),
		"Path to the YAML configuration file (optional)")
	flag.Parse()

	// The .env file carries local secrets; absence is normal in deploys.
	// Loaded before logging setup so LOG_LEVEL can come from it.
	envLoaded := godotenv.Load() == nil

	setupLogging()
	if envLoaded {
		slog.Info("Loaded environment from .env")
	}
	slog.Info("Starting ascent",
		"version", version.Version,
		"commit", version.GitCommit,
		"config", *configPath)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	clk := clock.NewSystem()

	// Database and store. NewClient pings and migrates before returning.
	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	st := postgres.New(dbClient.DB())
	slog.Info("Connected to PostgreSQL, migrations applied")

	// Progression rows exist from boot so status and scheduling never race
	// first-cycle row creation.
	for _, kind := range models.AllAgentKinds() {
		if _, err := st.Metrics().Ensure(ctx, kind, clk.Now()); err != nil {
			slog.Error("Failed to ensure agent metrics row", "agent", kind, "error", err)
			os.Exit(1)
		}
	}

	// Event fabric: transactional outbox writer, LISTEN-side feed, and the
	// in-process broker fanning out to the learning loop and WebSockets.
	broker := events.NewBroker()
	publisher := events.NewPublisher(st)

	listener := events.NewNotifyListener(cfg.Database.DSN, broker)
	if err := listener.Start(ctx); err != nil {
		slog.Error("Failed to start notify listener", "error", err)
		os.Exit(1)
	}
	for _, channel := range events.AllChannels() {
		if err := listener.Subscribe(ctx, channel); err != nil {
			slog.Error("Failed to LISTEN on event channel", "channel", channel, "error", err)
			os.Exit(1)
		}
	}

	wsManager := events.NewConnectionManager(st.Events(), broker, clk, wsWriteTimeout)
	wsManager.Start()

	// Token accounting and the LLM gateway.
	ldg := ledger.New(st.Tokens(), publisher, clk, cfg.Token)
	limiter := llm.NewLimiter(clk, cfg.RateLimit)

	primary := openai.NewClient(openai.Config{
		APIKey:  os.Getenv(cfg.Providers.Primary.APIKeyEnv),
		Model:   cfg.Providers.Primary.Model,
		BaseURL: cfg.Providers.Primary.BaseURL,
		Timeout: cfg.Providers.Primary.Timeout,
	})
	secondary := anthropic.NewClient(anthropic.Config{
		APIKey:  os.Getenv(cfg.Providers.Secondary.APIKeyEnv),
		Model:   cfg.Providers.Secondary.Model,
		BaseURL: cfg.Providers.Secondary.BaseURL,
		Timeout: cfg.Providers.Secondary.Timeout,
	})
	masker := masking.New(cfg.Masking)
	gateway := llm.NewGateway(ldg, limiter, primary, secondary, masker, clk, cfg.Gateway, cfg.Token)
	slog.Info("LLM gateway initialized",
		"primary_model", primary.Model(),
		"secondary_model", secondary.Model())

	// Knowledge sources with background health probing.
	registry := source.NewRegistry(cfg.Sources, clk, nil)
	monitor := source.NewMonitor(registry, cfg.Sources, clk)
	monitor.Start(ctx)

	// Custody engine and its agents.
	generator := custody.NewGenerator(st.Scenarios(), cfg.Custody, clk)
	scorer := custody.NewScorer(cfg, clk)
	engine := custody.NewEngine(st, cfg, clk, generator, scorer, publisher)

	eligibility := custody.NewEligibility(st.Scores(), clk)

	executor := proposal.NewAllowlistExecutor(cfg.Executor)
	notifier := proposal.NewNotifier(cfg.Notifier)
	proposals := proposal.NewService(st, eligibility, publisher, executor, cfg, clk,
		proposal.WithNotifier(notifier))

	engine.RegisterResponder(agent.NewImperium(gateway, clk, nil, agent.WithDocFetcher(registry)))
	engine.RegisterResponder(agent.NewGuardian(gateway, clk, nil, eligibility, proposals))
	engine.RegisterResponder(agent.NewSandbox(gateway, clk, nil))
	engine.RegisterResponder(agent.NewConquest(gateway, clk, nil))

	// Learning loop and the periodic cross-agent transfer.
	patterns := knowledge.NewService(st.Knowledge(), clk)
	loop := learning.NewLoop(broker, patterns, st, cfg, clk)
	loop.Start()
	transfer := learning.NewTransfer(patterns, cfg.Transfer, clk)
	transfer.Start()

	// Cadence scheduler over the resource gate.
	gate := scheduler.NewGate(cfg.Resource, clk)
	sched := scheduler.New(engine, st, gate, cfg, clk)
	sched.Start()

	retain := retention.New(st, cfg.Retention, clk)
	retain.Start()

	server := api.NewServer(cfg, st, sched, proposals, ldg, registry, wsManager)
	server.SetDBClient(dbClient)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("Ascent started", "addr", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Reverse start order. The HTTP server drains first so nothing new
	// reaches components that are already stopping.
	httpCtx, httpCancel := context.WithTimeout(ctx, httpShutdownBudget)
	if err := server.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	httpCancel()

	retain.Stop()
	stopWithBudget("scheduler", schedulerShutdownBudget, sched.Stop)
	transfer.Stop()
	loop.Stop()
	monitor.Stop()
	wsManager.Stop()

	listenerCtx, listenerCancel := context.WithTimeout(ctx, listenerShutdownBudget)
	listener.Stop(listenerCtx)
	listenerCancel()

	slog.Info("Shutdown complete")
}
