package config

import "time"

// defaultPassThresholds is the built-in per-category pass threshold table.
// Keys match the category enum values in pkg/models.
var defaultPassThresholds = map[string]float64{
	"knowledge":        60,
	"code_quality":     65,
	"security":         70,
	"performance":      65,
	"innovation":       60,
	"self_improvement": 65,
	"cross_ai":         65,
	"experiment":       70,
}

// Default returns the built-in configuration. YAML and environment
// overrides are merged on top of this.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			BearerTokensEnv: "ASCENT_API_TOKENS",
		},
		Token: TokenConfig{
			Primary:           ProviderBudget{MonthlyCap: 140000, PerRequestCap: 8000},
			Secondary:         ProviderBudget{MonthlyCap: 100000, PerRequestCap: 6000},
			FallbackThreshold: 0.95,
		},
		RateLimit: RateLimitConfig{
			Primary:   ProviderRateLimit{PerMinute: 42, PerDay: 3400},
			Secondary: ProviderRateLimit{PerMinute: 42, PerDay: 3400},
		},
		Providers: ProvidersConfig{
			Primary: ProviderEndpoint{
				BaseURL:   "https://api.openai.com/v1",
				Model:     "gpt-4o-mini",
				APIKeyEnv: "PRIMARY_LLM_API_KEY",
				Timeout:   30 * time.Second,
			},
			Secondary: ProviderEndpoint{
				BaseURL:   "https://api.anthropic.com",
				Model:     "claude-3-5-haiku-latest",
				APIKeyEnv: "SECONDARY_LLM_API_KEY",
				Timeout:   30 * time.Second,
			},
		},
		Gateway: GatewayConfig{
			CallTimeout:    30 * time.Second,
			RetryJitterMin: 250 * time.Millisecond,
			RetryJitterMax: 750 * time.Millisecond,
		},
		Cadence: CadenceConfig{
			ImperiumMinutes:             90,
			ImperiumInitialDelayMinutes: 0,
			SandboxMinutes:              120,
			SandboxInitialDelayMinutes:  30,
			GuardianMinutes:             300,
			GuardianInitialDelayMinutes: 60,
			ConquestMinutes:             180,
			ConquestInitialDelayMinutes: 45,
		},
		Resource: ResourceConfig{
			CPUMaxPct:      80,
			MemMaxPct:      85,
			SampleInterval: time.Minute,
			RetryInterval:  5 * time.Minute,
		},
		Custody: CustodyConfig{
			RecentFingerprintsN: 200,
		},
		Learning: LearningConfig{
			EWMA: EWMAConfig{AlphaSuccess: 0.2, AlphaLearning: 0.1},
		},
		Transfer: TransferConfig{
			Interval: 6 * time.Hour,
			TopK:     3,
		},
		Sources: SourcesConfig{
			FetchTimeout:   10 * time.Second,
			CacheTTL:       10 * time.Minute,
			HealthInterval: 15 * time.Minute,
		},
		Notifier: NotifierConfig{
			TokenEnv: "SLACK_BOT_TOKEN",
		},
		Executor: ExecutorConfig{
			AllowedActions: []string{
				"rotate_logs",
				"restart_service",
				"clear_tmp",
				"vacuum_store",
				"resync_time",
			},
			Timeout: 120 * time.Second,
		},
		Retention: RetentionConfig{
			EventTTL: 24 * time.Hour,
			Interval: time.Hour,
		},
	}
}
