package llm

import "errors"

var (
	// ErrTokensExhausted means neither provider has budget for the request
	// this month. Callers skip the work rather than retry.
	ErrTokensExhausted = errors.New("token budget exhausted")

	// ErrRateLimited surfaces an upstream HTTP 429.
	ErrRateLimited = errors.New("rate limited by provider")
)
