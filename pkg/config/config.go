// Package config loads and validates the platform configuration from
// defaults, an optional YAML file, and environment overrides.
package config

// Config is the umbrella configuration object returned by Initialize and
// passed explicitly to component constructors. It is immutable after load;
// runtime-mutable state (pause flags, the live source set) belongs to the
// components that own it.
type Config struct {
	path string // YAML file the config was loaded from, if any

	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Token     TokenConfig     `yaml:"token"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Providers ProvidersConfig `yaml:"providers"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Cadence   CadenceConfig   `yaml:"cadence"`
	Resource  ResourceConfig  `yaml:"resource"`
	Custody   CustodyConfig   `yaml:"custody"`
	Learning  LearningConfig  `yaml:"learning"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Sources   SourcesConfig   `yaml:"sources"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Masking   MaskingConfig   `yaml:"masking"`
	Retention RetentionConfig `yaml:"retention"`
}

// Path returns the YAML file the configuration was loaded from, empty when
// running on pure defaults.
func (c *Config) Path() string {
	return c.path
}

// Stats summarizes the loaded configuration for startup logging.
type Stats struct {
	Sources        int
	BearerTokens   int
	AllowedActions int
	NotifierOn     bool
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() Stats {
	return Stats{
		Sources:        len(c.Sources.Seeds),
		BearerTokens:   len(c.Auth.Tokens),
		AllowedActions: len(c.Executor.AllowedActions),
		NotifierOn:     c.Notifier.Enabled,
	}
}

// PassThreshold returns the pass threshold for a category, falling back to
// the built-in table when no override is configured.
func (c *Config) PassThreshold(category string) float64 {
	if v, ok := c.Custody.PassThresholds[category]; ok {
		return v
	}
	return defaultPassThresholds[category]
}
