package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/models"
)

// ActionFunc applies one healing action and returns a human-readable detail
// for the execution record.
type ActionFunc func(ctx context.Context, action models.Action) (string, error)

// AllowlistExecutor applies healing actions from the configured allow-list.
// Actions are named capabilities bound to Go handlers; there is no shell
// escape. The built-in handlers record the request and report success;
// deployments bind real machinery with WithHandler.
type AllowlistExecutor struct {
	allowed    map[string]bool
	handlers   map[string]ActionFunc
	scratchDir string
	logger     *slog.Logger
}

// ExecutorOption customizes the executor.
type ExecutorOption func(*AllowlistExecutor)

// WithHandler binds fn to an action name, replacing any built-in. The action
// still has to be on the configured allow-list to run.
func WithHandler(name string, fn ActionFunc) ExecutorOption {
	return func(e *AllowlistExecutor) { e.handlers[name] = fn }
}

// WithScratchDir points clear_tmp at a different scratch directory.
func WithScratchDir(dir string) ExecutorOption {
	return func(e *AllowlistExecutor) { e.scratchDir = dir }
}

// NewAllowlistExecutor builds the executor from config. Only actions named
// in cfg.AllowedActions will run, whether built-in or custom.
func NewAllowlistExecutor(cfg config.ExecutorConfig, opts ...ExecutorOption) *AllowlistExecutor {
	allowed := make(map[string]bool, len(cfg.AllowedActions))
	for _, name := range cfg.AllowedActions {
		allowed[name] = true
	}
	e := &AllowlistExecutor{
		allowed:    allowed,
		handlers:   make(map[string]ActionFunc),
		scratchDir: filepath.Join(os.TempDir(), "ascent"),
		logger:     slog.Default().With("component", "executor"),
	}
	e.handlers["rotate_logs"] = signalHandler("log rotation signalled")
	e.handlers["restart_service"] = restartService
	e.handlers["clear_tmp"] = e.clearScratch
	e.handlers["vacuum_store"] = signalHandler("store vacuum requested")
	e.handlers["resync_time"] = signalHandler("clock resync requested")
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies the actions in order, one result per action. Refusals and
// handler failures come back through the results; the error return is
// reserved for the run being interrupted, in which case the results cover
// only the actions attempted so far.
func (e *AllowlistExecutor) Execute(ctx context.Context, actions []models.Action) ([]models.ActionResult, error) {
	results := make([]models.ActionResult, 0, len(actions))
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("execution interrupted: %w", err)
		}
		results = append(results, e.apply(ctx, action))
	}
	return results, nil
}

func (e *AllowlistExecutor) apply(ctx context.Context, action models.Action) models.ActionResult {
	if !e.allowed[action.Name] {
		return models.ActionResult{Action: action, OK: false, Detail: "action not in allow-list"}
	}
	handler, ok := e.handlers[action.Name]
	if !ok {
		return models.ActionResult{Action: action, OK: false, Detail: "no handler bound for action"}
	}
	detail, err := handler(ctx, action)
	if err != nil {
		e.logger.Warn("Action failed", "action", action.Name, "error", err)
		return models.ActionResult{Action: action, OK: false, Detail: err.Error()}
	}
	e.logger.Info("Action applied", "action", action.Name, "detail", detail)
	return models.ActionResult{Action: action, OK: true, Detail: detail}
}

func signalHandler(detail string) ActionFunc {
	return func(context.Context, models.Action) (string, error) {
		return detail, nil
	}
}

func restartService(_ context.Context, action models.Action) (string, error) {
	service := action.Params["service"]
	if service == "" {
		return "", fmt.Errorf("restart_service requires a service param")
	}
	return fmt.Sprintf("restart requested for %s", service), nil
}

// clearScratch empties the platform's scratch directory. It never touches
// anything outside scratchDir.
func (e *AllowlistExecutor) clearScratch(_ context.Context, _ models.Action) (string, error) {
	entries, err := os.ReadDir(e.scratchDir)
	if os.IsNotExist(err) {
		return "scratch directory absent, nothing to clear", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading scratch directory: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(e.scratchDir, entry.Name())); err != nil {
			return "", fmt.Errorf("clearing %s: %w", entry.Name(), err)
		}
		removed++
	}
	return fmt.Sprintf("%d scratch entries removed", removed), nil
}
