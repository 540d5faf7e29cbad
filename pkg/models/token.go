package models

import "time"

// Provider names one of the two upstream LLM backends. Secondary serves as
// fallback when Primary is saturated.
type Provider string

const (
	// ProviderPrimary is the default upstream LLM backend
	ProviderPrimary Provider = "primary"
	// ProviderSecondary is the fallback upstream LLM backend
	ProviderSecondary Provider = "secondary"
)

// AllProviders lists both providers in preference order.
func AllProviders() []Provider {
	return []Provider{ProviderPrimary, ProviderSecondary}
}

// IsValid checks if the provider is valid
func (p Provider) IsValid() bool {
	return p == ProviderPrimary || p == ProviderSecondary
}

// TokenKind classifies what a ledger entry paid for.
type TokenKind string

const (
	TokenKindChat      TokenKind = "chat"
	TokenKindEmbedding TokenKind = "embedding"
	TokenKindOther     TokenKind = "other"
)

// IsValid checks if the token kind is valid
func (k TokenKind) IsValid() bool {
	return k == TokenKindChat || k == TokenKindEmbedding || k == TokenKindOther
}

// TokenLedgerEntry is one append-only spend record. Month is YYYY-MM in UTC.
type TokenLedgerEntry struct {
	ID        int64     `json:"id"`
	AgentKind AgentKind `json:"agent_kind"`
	Provider  Provider  `json:"provider"`
	Month     string    `json:"month"`
	TokensIn  int64     `json:"tokens_in"`
	TokensOut int64     `json:"tokens_out"`
	RequestID string    `json:"request_id,omitempty"`
	ModelID   string    `json:"model_id"`
	Kind      TokenKind `json:"kind"`
	OK        bool      `json:"ok"`
	Err       string    `json:"err,omitempty"`
	At        time.Time `json:"at"`
}

// TokenAggregate is the derived monthly view per (agent, provider, month).
type TokenAggregate struct {
	AgentKind    AgentKind `json:"agent_kind"`
	Provider     Provider  `json:"provider"`
	Month        string    `json:"month"`
	TokensTotal  int64     `json:"tokens_total"`
	RequestCount int64     `json:"request_count"`
}

// UsagePct returns consumption as a fraction of the given monthly cap,
// 0 when the cap is unset.
func (a *TokenAggregate) UsagePct(monthlyCap int64) float64 {
	if monthlyCap <= 0 {
		return 0
	}
	return float64(a.TokensTotal) / float64(monthlyCap)
}

// MonthOf formats t as the ledger month key.
func MonthOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}
