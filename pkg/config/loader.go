package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Start from built-in defaults
//  2. Read the YAML file at path (optional; "" skips)
//  3. Expand environment variables in the raw YAML
//  4. Merge the parsed file over the defaults
//  5. Apply environment overrides for secrets
//  6. Validate
func Initialize(_ context.Context, path string) (*Config, error) {
	log := slog.With("config_file", path)
	log.Info("Initializing configuration")

	cfg := Default()
	cfg.path = path

	if path != "" {
		loaded, err := loadYAML(path)
		if err != nil {
			return nil, NewLoadError(path, err)
		}
		if err := mergo.Merge(cfg, loaded, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge configuration: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"sources", stats.Sources,
		"bearer_tokens", stats.BearerTokens,
		"allowed_actions", stats.AllowedActions,
		"notifier_enabled", stats.NotifierOn)

	return cfg, nil
}

func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &cfg, nil
}

// applyEnvOverrides resolves secrets that must never live in YAML files.
func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("ASCENT_DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if addr := os.Getenv("ASCENT_LISTEN_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if cfg.Auth.BearerTokensEnv != "" {
		if raw := os.Getenv(cfg.Auth.BearerTokensEnv); raw != "" {
			var tokens []string
			for _, tok := range strings.Split(raw, ",") {
				if tok = strings.TrimSpace(tok); tok != "" {
					tokens = append(tokens, tok)
				}
			}
			cfg.Auth.Tokens = tokens
		}
	}
}
