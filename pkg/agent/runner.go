// Package agent implements the four platform runners: Imperium (architecture
// and review), Guardian (security and self-healing), Sandbox (experiments),
// and Conquest (optimization). Runners answer custody scenarios through the
// LLM gateway and do one kind-specific domain task per cycle.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/llm"
	"github.com/lvlup-dev/ascent/pkg/models"
)

// Runner is one agent: it answers scenarios and runs its domain task.
// The cycle engine drives both; runners never touch the store directly.
type Runner interface {
	Kind() models.AgentKind
	Respond(ctx context.Context, scenario *models.Scenario) (text string, thinkTime time.Duration, err error)
	RunDomainTask(ctx context.Context) (*models.DomainResult, error)
}

// Gateway is the slice of the LLM gateway runners need.
type Gateway interface {
	Call(ctx context.Context, agent models.AgentKind, purpose llm.Purpose, prompt string, maxOut int) (*llm.Result, error)
}

// responseTokenSteps sizes the completion budget by scenario complexity:
// 512 tokens at Basic, growing one step per rank up to 3072 at Legendary.
const (
	responseTokenStep = 512
	responseTokenMin  = 512
)

// maxTokensFor returns the completion budget for a scenario complexity.
func maxTokensFor(complexity models.Complexity) int {
	rank := complexity.Rank()
	if rank < 0 {
		return responseTokenMin
	}
	return responseTokenMin + rank*responseTokenStep
}

// base carries what every runner shares. Embedding it gives a runner
// Kind and the gateway-backed Respond.
type base struct {
	kind    models.AgentKind
	gateway Gateway
	clk     clock.Clock
	logger  *slog.Logger
}

func newBase(kind models.AgentKind, gateway Gateway, clk clock.Clock) base {
	if gateway == nil {
		panic("agent: gateway must not be nil")
	}
	if clk == nil {
		panic("agent: clock must not be nil")
	}
	return base{
		kind:    kind,
		gateway: gateway,
		clk:     clk,
		logger:  slog.Default().With("component", "agent", "agent_kind", kind),
	}
}

func (b *base) Kind() models.AgentKind { return b.kind }

// Respond answers the scenario prompt through the gateway. Gateway
// sentinels stay errors.Is-checkable through the wrap so the engine can
// classify budget exhaustion.
func (b *base) Respond(ctx context.Context, scenario *models.Scenario) (string, time.Duration, error) {
	started := b.clk.Now()
	result, err := b.gateway.Call(ctx, b.kind, llm.PurposeTestResponse, scenario.Prompt, maxTokensFor(scenario.Complexity))
	if err != nil {
		return "", 0, fmt.Errorf("%s responding to scenario %s: %w", b.kind, scenario.ID, err)
	}
	thinkTime := b.clk.Since(started)
	b.logger.Debug("Scenario answered",
		"scenario_id", scenario.ID,
		"provider", result.Provider,
		"tokens_out", result.TokensOut,
		"think_time", thinkTime)
	return result.Text, thinkTime, nil
}
