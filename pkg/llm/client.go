// Package llm routes completion calls to the upstream providers, gated by
// the token ledger and a per-agent rate limiter.
package llm

import "context"

// Completion is the raw outcome of one provider wire call.
type Completion struct {
	Text      string
	TokensIn  int64
	TokensOut int64
}

// Client is one upstream provider's wire client. Implementations must honor
// the ctx deadline and surface HTTP 429 as ErrRateLimited.
type Client interface {
	// Complete sends prompt as a single user message and returns the text of
	// the first completion along with reported token usage.
	Complete(ctx context.Context, prompt string, maxOut int) (*Completion, error)
	// Model returns the model identifier requests are issued against.
	Model() string
}
