package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/ledger"
	"github.com/lvlup-dev/ascent/pkg/masking"
	"github.com/lvlup-dev/ascent/pkg/models"
)

// Purpose classifies what a gateway call is for. It shows up in logs and
// lets budget analysis split spend by activity.
type Purpose string

const (
	// PurposeTestResponse is an agent answering a custody scenario.
	PurposeTestResponse Purpose = "test_response"
	// PurposeScoring is the scorer's optional LLM judgment detector.
	PurposeScoring Purpose = "scoring"
	// PurposeDomainTask is an agent's own background work.
	PurposeDomainTask Purpose = "domain_task"
)

// Result is one completed gateway call.
type Result struct {
	Text      string
	TokensIn  int64
	TokensOut int64
	Provider  models.Provider
	Model     string
}

// EstimateTokens approximates the cost of a call before it is made: one
// token per four prompt bytes padded 30% for tokenizer variance, plus the
// full output budget. Deliberately pessimistic so the ledger precheck errs
// toward denying.
func EstimateTokens(prompt string, maxOut int) int64 {
	promptTokens := float64(len(prompt)) / 4
	return int64(promptTokens*1.3) + int64(maxOut)
}

// Gateway is the single path from agents to the upstream providers. Every
// call is prechecked against the token ledger, rate limited, recorded, and
// masked before anything downstream can persist it.
type Gateway struct {
	ldg       *ledger.Ledger
	limiter   *Limiter
	primary   Client
	secondary Client
	masker    *masking.Masker
	clk       clock.Clock
	cfg       config.GatewayConfig
	threshold float64
	logger    *slog.Logger

	// jitter is swapped out in tests to keep retries deterministic.
	jitter func() time.Duration
}

// NewGateway wires the gateway. masker may be nil to disable masking.
func NewGateway(
	ldg *ledger.Ledger,
	limiter *Limiter,
	primary, secondary Client,
	masker *masking.Masker,
	clk clock.Clock,
	cfg config.GatewayConfig,
	tokenCfg config.TokenConfig,
) *Gateway {
	g := &Gateway{
		ldg:       ldg,
		limiter:   limiter,
		primary:   primary,
		secondary: secondary,
		masker:    masker,
		clk:       clk,
		cfg:       cfg,
		threshold: tokenCfg.FallbackThreshold,
		logger:    slog.Default().With("component", "llm_gateway"),
	}
	g.jitter = func() time.Duration {
		span := g.cfg.RetryJitterMax - g.cfg.RetryJitterMin
		if span <= 0 {
			return g.cfg.RetryJitterMin
		}
		return g.cfg.RetryJitterMin + rand.N(span)
	}
	return g
}

// Call estimates the request, picks a provider, waits for a rate slot, and
// performs the call. A transport failure is recorded and retried once on the
// same provider after jittered backoff; the second failure fails the call.
func (g *Gateway) Call(ctx context.Context, agent models.AgentKind, purpose Purpose, prompt string, maxOut int) (*Result, error) {
	est := EstimateTokens(prompt, maxOut)

	provider, client, err := g.selectProvider(ctx, agent, est)
	if err != nil {
		return nil, err
	}

	if err := g.limiter.Wait(ctx, agent, provider); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	comp, err := g.callOnce(ctx, agent, provider, client, requestID, prompt, maxOut)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		g.logger.Warn("Provider call failed, retrying once",
			"agent", agent, "provider", provider, "purpose", purpose, "error", err)
		if serr := g.clk.Sleep(ctx, g.jitter()); serr != nil {
			return nil, serr
		}
		comp, err = g.callOnce(ctx, agent, provider, client, requestID, prompt, maxOut)
		if err != nil {
			return nil, err
		}
	}

	g.logger.Debug("Gateway call complete",
		"agent", agent, "provider", provider, "purpose", purpose,
		"tokens_in", comp.TokensIn, "tokens_out", comp.TokensOut)
	return &Result{
		Text:      comp.Text,
		TokensIn:  comp.TokensIn,
		TokensOut: comp.TokensOut,
		Provider:  provider,
		Model:     client.Model(),
	}, nil
}

// selectProvider runs the ledger prechecks. Primary wins unless it is denied
// or already past the fallback threshold; then Secondary is tried. When
// Secondary is also denied the call stays on an allowed Primary, and only
// when both deny does the call fail with ErrTokensExhausted.
func (g *Gateway) selectProvider(ctx context.Context, agent models.AgentKind, est int64) (models.Provider, Client, error) {
	primary, err := g.ldg.Precheck(ctx, agent, models.ProviderPrimary, est)
	if err != nil {
		return "", nil, fmt.Errorf("precheck primary: %w", err)
	}
	if primary.Allowed && primary.Usage < g.threshold {
		return models.ProviderPrimary, g.primary, nil
	}

	secondary, err := g.ldg.Precheck(ctx, agent, models.ProviderSecondary, est)
	if err != nil {
		return "", nil, fmt.Errorf("precheck secondary: %w", err)
	}
	if secondary.Allowed {
		if primary.Allowed {
			g.logger.Info("Primary near its monthly cap, routing to secondary",
				"agent", agent, "primary_usage", primary.Usage)
		}
		return models.ProviderSecondary, g.secondary, nil
	}
	if primary.Allowed {
		return models.ProviderPrimary, g.primary, nil
	}
	return "", nil, fmt.Errorf("%w: agent %s needs ~%d tokens", ErrTokensExhausted, agent, est)
}

// callOnce performs one provider attempt under the call timeout and records
// its ledger row. The row is written even when the caller's ctx is already
// dead, and a cancelled call is never recorded as ok.
func (g *Gateway) callOnce(ctx context.Context, agent models.AgentKind, provider models.Provider, client Client, requestID, prompt string, maxOut int) (*Completion, error) {
	cctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	comp, err := client.Complete(cctx, prompt, maxOut)
	if err == nil && ctx.Err() != nil {
		// The provider answered after the caller gave up.
		err = ctx.Err()
	}

	spend := ledger.Spend{
		Agent:     agent,
		Provider:  provider,
		RequestID: requestID,
		Model:     client.Model(),
		Kind:      models.TokenKindChat,
	}
	if err != nil {
		spend.Err = g.mask(g.classifyErr(ctx, cctx, err))
	} else {
		spend.OK = true
		spend.TokensIn = comp.TokensIn
		spend.TokensOut = comp.TokensOut
	}
	if rerr := g.ldg.Record(context.WithoutCancel(ctx), spend); rerr != nil {
		g.logger.Error("Failed to record token spend",
			"agent", agent, "provider", provider, "error", rerr)
	}
	if err != nil {
		return nil, err
	}
	comp.Text = g.mask(comp.Text)
	return comp, nil
}

// classifyErr normalizes the ledger error column: a tripped call timeout is
// "timeout", a caller cancellation is "cancelled", anything else keeps the
// provider's message.
func (g *Gateway) classifyErr(ctx, cctx context.Context, err error) string {
	switch {
	case ctx.Err() == context.Canceled:
		return "cancelled"
	case cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		return "timeout"
	default:
		return err.Error()
	}
}

func (g *Gateway) mask(text string) string {
	if g.masker == nil {
		return text
	}
	return g.masker.Mask(text)
}
