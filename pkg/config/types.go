package config

import "time"

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	// DSN is the Postgres connection string. Usually injected via
	// ASCENT_DATABASE_DSN rather than written into YAML.
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowedOrigins are additional CORS/WebSocket origins beyond localhost.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	// BearerTokensEnv names the env var carrying a comma-separated list of
	// accepted opaque bearer tokens.
	BearerTokensEnv string `yaml:"bearer_tokens_env"`
	// Tokens is resolved from BearerTokensEnv at load time.
	Tokens []string `yaml:"-"`
}

// ProviderBudget bounds monthly and per-request token spend for one provider.
type ProviderBudget struct {
	MonthlyCap    int64 `yaml:"monthly_cap"`
	PerRequestCap int64 `yaml:"per_request_cap"`
}

// TokenConfig holds the ledger budgets and fallback behavior.
type TokenConfig struct {
	Primary   ProviderBudget `yaml:"primary"`
	Secondary ProviderBudget `yaml:"secondary"`
	// FallbackThreshold is the Primary usage fraction at which the gateway
	// prefers Secondary outright (default 0.95).
	FallbackThreshold float64 `yaml:"fallback_threshold"`
}

// ProviderRateLimit bounds request rates for one provider.
type ProviderRateLimit struct {
	PerMinute int `yaml:"per_minute"`
	PerDay    int `yaml:"per_day"`
}

// RateLimitConfig holds per-provider rate limiter bounds.
type RateLimitConfig struct {
	Primary   ProviderRateLimit `yaml:"primary"`
	Secondary ProviderRateLimit `yaml:"secondary"`
}

// ProviderEndpoint describes one upstream LLM backend.
type ProviderEndpoint struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// APIKeyEnv names the env var carrying the API key.
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ProvidersConfig holds both upstream LLM endpoints.
type ProvidersConfig struct {
	Primary   ProviderEndpoint `yaml:"primary"`
	Secondary ProviderEndpoint `yaml:"secondary"`
}

// CadenceConfig holds per-agent scheduling intervals, in minutes to match
// the deploy-facing option names.
type CadenceConfig struct {
	ImperiumMinutes             int `yaml:"imperium_minutes"`
	ImperiumInitialDelayMinutes int `yaml:"imperium_initial_delay_minutes"`
	SandboxMinutes              int `yaml:"sandbox_minutes"`
	SandboxInitialDelayMinutes  int `yaml:"sandbox_initial_delay_minutes"`
	GuardianMinutes             int `yaml:"guardian_minutes"`
	GuardianInitialDelayMinutes int `yaml:"guardian_initial_delay_minutes"`
	ConquestMinutes             int `yaml:"conquest_minutes"`
	ConquestInitialDelayMinutes int `yaml:"conquest_initial_delay_minutes"`
}

// Interval returns the cadence for the named agent kind.
func (c *CadenceConfig) Interval(kind string) time.Duration {
	switch kind {
	case "imperium":
		return time.Duration(c.ImperiumMinutes) * time.Minute
	case "sandbox":
		return time.Duration(c.SandboxMinutes) * time.Minute
	case "guardian":
		return time.Duration(c.GuardianMinutes) * time.Minute
	case "conquest":
		return time.Duration(c.ConquestMinutes) * time.Minute
	default:
		return 0
	}
}

// InitialDelay returns the stagger offset for the named agent kind.
func (c *CadenceConfig) InitialDelay(kind string) time.Duration {
	switch kind {
	case "imperium":
		return time.Duration(c.ImperiumInitialDelayMinutes) * time.Minute
	case "sandbox":
		return time.Duration(c.SandboxInitialDelayMinutes) * time.Minute
	case "guardian":
		return time.Duration(c.GuardianInitialDelayMinutes) * time.Minute
	case "conquest":
		return time.Duration(c.ConquestInitialDelayMinutes) * time.Minute
	default:
		return 0
	}
}

// ResourceConfig holds the resource gate thresholds and sampling intervals.
type ResourceConfig struct {
	CPUMaxPct float64 `yaml:"cpu_max_pct"`
	MemMaxPct float64 `yaml:"mem_max_pct"`
	// SampleInterval is how often CPU/memory are sampled.
	SampleInterval time.Duration `yaml:"sample_interval"`
	// RetryInterval is how long a gate-denied tick waits before re-checking.
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// CustodyConfig holds test-engine tuning.
type CustodyConfig struct {
	// PassThresholds overrides the per-category pass threshold, keyed by
	// category name.
	PassThresholds map[string]float64 `yaml:"pass_threshold"`
	// RecentFingerprintsN is the non-repetition window size.
	RecentFingerprintsN int `yaml:"recent_fingerprints_n"`
}

// EWMAConfig holds the smoothing factors for metric updates.
type EWMAConfig struct {
	AlphaSuccess  float64 `yaml:"alpha_success"`
	AlphaLearning float64 `yaml:"alpha_learning"`
}

// LearningConfig holds learning-loop tuning.
type LearningConfig struct {
	EWMA EWMAConfig `yaml:"ewma"`
}

// TransferConfig holds cross-agent knowledge transfer settings.
type TransferConfig struct {
	Interval time.Duration `yaml:"interval"`
	TopK     int           `yaml:"top_k"`
	// AffinityMatrix weights (source kind -> target kind). Defaults to a
	// symmetric uniform matrix excluding self-pairs.
	AffinityMatrix map[string]map[string]float64 `yaml:"affinity_matrix"`
}

// SourceSeed is one knowledge source configured at startup.
type SourceSeed struct {
	URL     string `yaml:"url"`
	Trusted bool   `yaml:"trusted"`
}

// SourcesConfig holds the seeded source registry state.
type SourcesConfig struct {
	Seeds []SourceSeed `yaml:"seeds"`
	// AllowedHosts restricts which hosts fetch adapters may contact.
	AllowedHosts []string      `yaml:"allowed_hosts"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	// HealthInterval is how often sources are probed; zero disables probing.
	HealthInterval time.Duration `yaml:"health_interval"`
}

// NotifierConfig holds Slack notification settings for proposals.
type NotifierConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env"`
	Channel  string `yaml:"channel"`
}

// RetentionConfig holds data retention settings. Scenario, response, and
// score rows are immutable and retained indefinitely; only the token ledger
// and delivered events age out.
type RetentionConfig struct {
	// EventTTL is how long delivered event rows are kept.
	EventTTL time.Duration `yaml:"event_ttl"`
	// Interval is how often retention runs.
	Interval time.Duration `yaml:"interval"`
}

// ExecutorConfig holds the approved-action executor allow-list.
type ExecutorConfig struct {
	AllowedActions []string      `yaml:"allowed_actions"`
	Timeout        time.Duration `yaml:"timeout"`
}

// MaskingPattern is one config-supplied secret pattern.
type MaskingPattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// MaskingConfig extends the built-in secret patterns applied to LLM traffic.
type MaskingConfig struct {
	ExtraPatterns []MaskingPattern `yaml:"extra_patterns"`
}

// GatewayConfig holds LLM gateway call behavior.
type GatewayConfig struct {
	CallTimeout time.Duration `yaml:"call_timeout"`
	// RetryJitterMin/Max bound the backoff before the single transport retry.
	RetryJitterMin time.Duration `yaml:"retry_jitter_min"`
	RetryJitterMax time.Duration `yaml:"retry_jitter_max"`
}
