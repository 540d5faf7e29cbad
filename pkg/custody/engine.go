package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/events"
	"github.com/lvlup-dev/ascent/pkg/llm"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

// diversityLookback is how many recent scenarios a category must dodge.
const diversityLookback = 2

// domainTaskTimeout bounds the per-cycle side work so a hung task cannot
// stall the cycle commit.
const domainTaskTimeout = 30 * time.Second

// Responder produces an agent's answer to a scenario. Implementations call
// the LLM gateway and must respect ctx; the engine enforces the scenario
// time limit through it.
type Responder interface {
	Kind() models.AgentKind
	Respond(ctx context.Context, scenario *models.Scenario) (text string, thinkTime time.Duration, err error)
}

// DomainTasker is optionally implemented by responders that do side work
// each cycle (snapshots, probes, experiment bookkeeping). The result summary
// lands in the cycle record. Failures skip the note, never the cycle.
type DomainTasker interface {
	RunDomainTask(ctx context.Context) (*models.DomainResult, error)
}

// CyclePublisher broadcasts cycle lifecycle events. Publishing is
// best-effort; failures are logged, never fatal to the cycle.
type CyclePublisher interface {
	PublishCycleStart(ctx context.Context, payload events.CycleStartPayload) error
	PublishCycleEnd(ctx context.Context, payload events.CycleEndPayload) error
}

// Trigger records what initiated a cycle.
type Trigger string

const (
	// TriggerScheduled marks cycles started by the scheduler cadence
	TriggerScheduled Trigger = "scheduled"
	// TriggerManual marks cycles started through the API
	TriggerManual Trigger = "manual"
)

// RunOptions tunes a single cycle. Zero values mean "engine decides".
type RunOptions struct {
	Trigger Trigger
	// CycleID is used when the caller pre-allocated an ID (async triggers
	// answer with it before the cycle runs). Empty means the engine assigns.
	CycleID string
	// Category overrides category selection. Must be in the agent's allowed
	// set.
	Category models.Category
	// Complexity overrides the level-derived complexity.
	Complexity models.Complexity
}

// CycleSummary reports how a cycle ended. Outcomes other than CycleOK carry
// only the identity fields.
type CycleSummary struct {
	CycleID    string
	AgentKind  models.AgentKind
	Outcome    models.CycleOutcome
	ScenarioID string
	ResponseID string
	Category   models.Category
	Complexity models.Complexity
	Overall    float64
	Passed     bool
	XPDelta    int64
	Level      int
	LeveledUp  bool
	StartedAt  time.Time
	EndedAt    time.Time
}

// Engine runs custody cycles: pick a category and complexity, generate a
// scenario, collect the agent's response, score it, and commit the outcome
// in one transaction. It is the only writer of agent progression metrics.
type Engine struct {
	st        store.Store
	cfg       *config.Config
	clk       clock.Clock
	generator *Generator
	scorer    *Scorer
	publisher CyclePublisher
	logger    *slog.Logger

	mu         sync.Mutex
	responders map[models.AgentKind]Responder
	inflight   map[models.AgentKind]*sync.Mutex
}

// NewEngine creates the cycle engine. Responders are registered separately
// so agents can be wired after the engine exists.
func NewEngine(st store.Store, cfg *config.Config, clk clock.Clock, generator *Generator, scorer *Scorer, publisher CyclePublisher) *Engine {
	inflight := make(map[models.AgentKind]*sync.Mutex, len(models.AllAgentKinds()))
	for _, kind := range models.AllAgentKinds() {
		inflight[kind] = &sync.Mutex{}
	}
	return &Engine{
		st:         st,
		cfg:        cfg,
		clk:        clk,
		generator:  generator,
		scorer:     scorer,
		publisher:  publisher,
		logger:     slog.Default().With("component", "custody"),
		responders: make(map[models.AgentKind]Responder),
		inflight:   inflight,
	}
}

// RegisterResponder attaches the runner answering for its kind. Later
// registrations replace earlier ones.
func (e *Engine) RegisterResponder(r Responder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responders[r.Kind()] = r
}

func (e *Engine) responder(kind models.AgentKind) (Responder, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.responders[kind]
	return r, ok
}

// InFlight reports whether a cycle for kind is running right now. It is
// advisory (the answer can be stale by the time the caller acts);
// RunCycle itself enforces the one-at-a-time guarantee.
func (e *Engine) InFlight(kind models.AgentKind) bool {
	lock, ok := e.inflight[kind]
	if !ok {
		return false
	}
	if lock.TryLock() {
		lock.Unlock()
		return false
	}
	return true
}

// RunCycle executes one full cycle for kind. At most one cycle per kind runs
// at a time; a second caller gets ErrCycleInFlight immediately. Mid-cycle
// failures are persisted as cycle records and reported through the summary
// outcome; the returned error is reserved for refusals and cancellation.
// A cancelled context leaves no rows behind.
func (e *Engine) RunCycle(ctx context.Context, kind models.AgentKind, opts RunOptions) (*CycleSummary, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("unknown agent kind %q", kind)
	}
	responder, ok := e.responder(kind)
	if !ok {
		return nil, fmt.Errorf("no responder registered for %s", kind)
	}

	lock := e.inflight[kind]
	if !lock.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrCycleInFlight, kind)
	}
	defer lock.Unlock()

	started := e.clk.Now().UTC()
	cycleID := opts.CycleID
	if cycleID == "" {
		cycleID = uuid.New().String()
	}
	if opts.Trigger == "" {
		opts.Trigger = TriggerScheduled
	}

	metrics, err := e.st.Metrics().Ensure(ctx, kind, started)
	if err != nil {
		return nil, fmt.Errorf("loading metrics for %s: %w", kind, err)
	}
	priorScores, err := e.st.Scores().Recent(ctx, kind, eligibilityWindow)
	if err != nil {
		return nil, fmt.Errorf("loading recent scores for %s: %w", kind, err)
	}
	recentScenarios, err := e.st.Scenarios().Recent(ctx, kind, diversityLookback)
	if err != nil {
		return nil, fmt.Errorf("loading recent scenarios for %s: %w", kind, err)
	}

	category, err := e.chooseCategory(kind, opts.Category, recentScenarios)
	if err != nil {
		return nil, err
	}
	threshold := e.cfg.PassThreshold(string(category))
	complexity, err := chooseComplexity(opts.Complexity, metrics.Level, priorScores, threshold)
	if err != nil {
		return nil, err
	}

	summary := &CycleSummary{
		CycleID:    cycleID,
		AgentKind:  kind,
		Category:   category,
		Complexity: complexity,
		Level:      metrics.Level,
		StartedAt:  started,
	}

	e.publishStart(ctx, summary)
	e.logger.Info("Cycle started",
		"cycle_id", cycleID, "agent", kind, "trigger", opts.Trigger,
		"category", category, "complexity", complexity)

	scenario, err := e.generateWithRetry(ctx, kind, category, complexity)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return e.finishFailed(ctx, summary, models.CycleError,
			fmt.Sprintf("scenario generation failed: %v", err))
	}

	text, thinkTime, err := e.respond(ctx, responder, scenario)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, llm.ErrTokensExhausted) {
			return e.finishFailed(ctx, summary, models.CycleSkippedTokens,
				"token budget exhausted on both providers")
		}
		return e.finishFailed(ctx, summary, models.CycleError,
			fmt.Sprintf("response failed: %v", err))
	}

	response := &models.Response{
		ID:         uuid.New().String(),
		ScenarioID: scenario.ID,
		AgentKind:  kind,
		Text:       text,
		DurationMS: thinkTime.Milliseconds(),
		CreatedAt:  e.clk.Now().UTC(),
	}

	score, err := e.scorer.Score(ctx, scenario, response)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return e.finishFailed(ctx, summary, models.CycleError,
			fmt.Sprintf("scoring failed: %v", err))
	}

	notes := e.runDomainTask(ctx, responder)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	ended := e.clk.Now().UTC()
	var (
		xpDelta   int64
		leveledUp bool
		newLevel  int
	)
	err = e.st.WithTx(ctx, func(tx store.Store) error {
		if err := tx.Scenarios().Insert(ctx, scenario); err != nil {
			return fmt.Errorf("persisting scenario: %w", err)
		}
		if err := tx.Responses().Insert(ctx, response); err != nil {
			return fmt.Errorf("persisting response: %w", err)
		}
		if err := tx.Scores().Insert(ctx, score); err != nil {
			return fmt.Errorf("persisting score: %w", err)
		}
		updated, err := tx.Metrics().Update(ctx, kind, ended, func(m *models.AgentMetrics) error {
			xpDelta, leveledUp = e.applyProgress(m, score, complexity, priorScores, ended)
			return nil
		})
		if err != nil {
			return fmt.Errorf("updating metrics: %w", err)
		}
		newLevel = updated.Level
		record := &models.CycleRecord{
			ID:        cycleID,
			AgentKind: kind,
			StartedAt: started,
			EndedAt:   &ended,
			Outcome:   models.CycleOK,
			XPDelta:   xpDelta,
			Notes:     notes,
		}
		if err := tx.Cycles().Insert(ctx, record); err != nil {
			return fmt.Errorf("persisting cycle record: %w", err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("committing cycle %s: %w", cycleID, err)
	}

	summary.Outcome = models.CycleOK
	summary.ScenarioID = scenario.ID
	summary.ResponseID = response.ID
	summary.Overall = score.Overall
	summary.Passed = score.Passed
	summary.XPDelta = xpDelta
	summary.Level = newLevel
	summary.LeveledUp = leveledUp
	summary.EndedAt = ended

	e.publishEnd(ctx, summary)
	e.logger.Info("Cycle committed",
		"cycle_id", cycleID, "agent", kind, "overall", score.Overall,
		"passed", score.Passed, "xp_delta", xpDelta, "level", newLevel)
	return summary, nil
}

// RecordSkippedCycle persists a cycle that never ran, for example a tick the
// resource gate refused. The record and the cycle.end event carry the skip
// reason.
func (e *Engine) RecordSkippedCycle(ctx context.Context, kind models.AgentKind, outcome models.CycleOutcome, note string) (*CycleSummary, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("unknown agent kind %q", kind)
	}
	now := e.clk.Now().UTC()
	summary := &CycleSummary{
		CycleID:   uuid.New().String(),
		AgentKind: kind,
		Outcome:   outcome,
		StartedAt: now,
		EndedAt:   now,
	}
	record := &models.CycleRecord{
		ID:        summary.CycleID,
		AgentKind: kind,
		StartedAt: now,
		EndedAt:   &now,
		Outcome:   outcome,
		Notes:     note,
	}
	if err := e.st.Cycles().Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("persisting skipped cycle: %w", err)
	}
	e.publishEnd(ctx, summary)
	e.logger.Info("Cycle skipped", "cycle_id", summary.CycleID, "agent", kind,
		"outcome", outcome, "note", note)
	return summary, nil
}

// finishFailed persists the failure record, publishes the end event, and
// reports the outcome through the summary. Scenario and response rows are
// never written on these paths.
func (e *Engine) finishFailed(ctx context.Context, summary *CycleSummary, outcome models.CycleOutcome, note string) (*CycleSummary, error) {
	ended := e.clk.Now().UTC()
	summary.Outcome = outcome
	summary.EndedAt = ended
	record := &models.CycleRecord{
		ID:        summary.CycleID,
		AgentKind: summary.AgentKind,
		StartedAt: summary.StartedAt,
		EndedAt:   &ended,
		Outcome:   outcome,
		Notes:     note,
	}
	if err := e.st.Cycles().Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("persisting cycle record: %w", err)
	}
	e.publishEnd(ctx, summary)
	e.logger.Warn("Cycle did not complete",
		"cycle_id", summary.CycleID, "agent", summary.AgentKind,
		"outcome", outcome, "note", note)
	return summary, nil
}

func (e *Engine) generateWithRetry(ctx context.Context, kind models.AgentKind, category models.Category, complexity models.Complexity) (*models.Scenario, error) {
	scenario, err := e.generator.Generate(ctx, kind, category, complexity)
	if err == nil || ctx.Err() != nil {
		return scenario, err
	}
	e.logger.Warn("Scenario generation failed, retrying once",
		"agent", kind, "category", category, "error", err)
	return e.generator.Generate(ctx, kind, category, complexity)
}

// respond runs the agent under the scenario's time limit.
func (e *Engine) respond(ctx context.Context, responder Responder, scenario *models.Scenario) (string, time.Duration, error) {
	rctx, cancel := context.WithTimeout(ctx, scenario.TimeLimit)
	defer cancel()
	return responder.Respond(rctx, scenario)
}

func (e *Engine) runDomainTask(ctx context.Context, responder Responder) string {
	tasker, ok := responder.(DomainTasker)
	if !ok {
		return ""
	}
	tctx, cancel := context.WithTimeout(ctx, domainTaskTimeout)
	defer cancel()
	result, err := tasker.RunDomainTask(tctx)
	if err != nil {
		e.logger.Warn("Domain task failed", "agent", responder.Kind(), "error", err)
		return ""
	}
	if result == nil {
		return ""
	}
	return result.Summary
}

// applyProgress folds one scored cycle into the metrics row. Level advances
// only when recent form permits; XP accrues regardless, so a held-back level
// catches up on the next permitted cycle.
func (e *Engine) applyProgress(m *models.AgentMetrics, score *models.Score, complexity models.Complexity, prior []*models.Score, now time.Time) (int64, bool) {
	xpDelta := xpGain(complexity, score.Overall, score.Passed)

	window := make([]*models.Score, 0, len(prior)+1)
	window = append(window, score)
	window = append(window, prior...)

	m.XP += xpDelta
	leveledUp := false
	if earned := levelForXP(m.XP); earned > m.Level && levelUpAllowed(window) {
		m.Level = earned
		m.Prestige = prestigeForLevel(earned)
		leveledUp = true
	}

	ewma := e.cfg.Learning.EWMA
	m.SuccessRate = nextSuccessRate(m.SuccessRate, score.Passed, m.TotalCycles, ewma.AlphaSuccess)
	m.LearningScore = nextLearningScore(m.LearningScore, score.Overall, ewma.AlphaLearning)
	m.TotalCycles++
	at := now
	m.LastCycleAt = &at
	if m.Status == models.AgentStatusIdle {
		m.Status = models.AgentStatusActive
	}
	return xpDelta, leveledUp
}

// chooseCategory resolves the category for this cycle. Overrides are
// validated against the agent's allowed set; automatic selection avoids the
// categories of the last two scenarios unless that would empty the set.
func (e *Engine) chooseCategory(kind models.AgentKind, override models.Category, recent []*models.Scenario) (models.Category, error) {
	allowed := kind.AllowedCategories()
	if override != "" {
		for _, c := range allowed {
			if c == override {
				return override, nil
			}
		}
		return "", fmt.Errorf("%w: %s for agent %s", ErrCategoryNotAllowed, override, kind)
	}

	used := make(map[models.Category]bool, diversityLookback)
	for _, sc := range recent {
		used[sc.Category] = true
	}
	fresh := make([]models.Category, 0, len(allowed))
	for _, c := range allowed {
		if !used[c] {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		fresh = allowed
	}
	return fresh[rand.N(len(fresh))], nil
}

// chooseComplexity resolves the complexity: an explicit override wins,
// otherwise the level-derived base adjusted by recent scores.
func chooseComplexity(override models.Complexity, level int, recent []*models.Score, threshold float64) (models.Complexity, error) {
	if override != "" {
		if !override.IsValid() {
			return "", fmt.Errorf("unknown complexity %q", override)
		}
		return override, nil
	}
	return adjustComplexity(baseComplexity(level), recent, threshold), nil
}

func (e *Engine) publishStart(ctx context.Context, summary *CycleSummary) {
	err := e.publisher.PublishCycleStart(ctx, events.CycleStartPayload{
		CycleID:   summary.CycleID,
		AgentKind: summary.AgentKind,
		Category:  summary.Category,
		At:        summary.StartedAt,
	})
	if err != nil {
		e.logger.Warn("Failed to publish cycle.start",
			"cycle_id", summary.CycleID, "error", err)
	}
}

func (e *Engine) publishEnd(ctx context.Context, summary *CycleSummary) {
	payload := events.CycleEndPayload{
		CycleID:   summary.CycleID,
		AgentKind: summary.AgentKind,
		Outcome:   summary.Outcome,
		At:        summary.EndedAt,
	}
	if summary.Outcome == models.CycleOK {
		payload.ScenarioID = summary.ScenarioID
		payload.ResponseID = summary.ResponseID
		payload.Category = summary.Category
		payload.Complexity = summary.Complexity
		payload.Overall = summary.Overall
		payload.Passed = summary.Passed
		payload.XPDelta = summary.XPDelta
	}
	if err := e.publisher.PublishCycleEnd(ctx, payload); err != nil {
		e.logger.Warn("Failed to publish cycle.end",
			"cycle_id", summary.CycleID, "error", err)
	}
}
