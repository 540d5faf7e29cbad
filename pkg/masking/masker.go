// Package masking scrubs credentials from LLM traffic before it is logged
// or persisted.
package masking

import (
	"log/slog"
	"regexp"

	"github.com/lvlup-dev/ascent/pkg/config"
)

// CompiledPattern holds a pre-compiled secret pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// Masker applies built-in plus config-supplied secret patterns in a fixed
// order. Compiled once at startup, stateless afterwards, safe for concurrent
// use.
type Masker struct {
	patterns []*CompiledPattern
	logger   *slog.Logger
}

// builtinPatterns returns the always-on patterns. PEM blocks and connection
// strings go first so structured secrets are gone before the keyword sweeps
// run over what remains.
func builtinPatterns() []*CompiledPattern {
	return []*CompiledPattern{
		{
			Name:        "pem_block",
			Regex:       regexp.MustCompile(`(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`),
			Replacement: `__MASKED_PEM_BLOCK__`,
		},
		{
			Name:        "connection_string",
			Regex:       regexp.MustCompile(`(?i)\b(?:postgres|postgresql|mysql|mongodb|redis|amqp)://[^\s"']+`),
			Replacement: `__MASKED_DSN__`,
		},
		{
			Name:        "bearer_header",
			Regex:       regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-.=]{16,}`),
			Replacement: `Bearer __MASKED_TOKEN__`,
		},
		{
			Name:        "api_key",
			Regex:       regexp.MustCompile(`(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{20,})["']?`),
			Replacement: `"api_key": "__MASKED_API_KEY__"`,
		},
		{
			Name:        "token",
			Regex:       regexp.MustCompile(`(?i)(?:token|jwt)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-.]{20,})["']?`),
			Replacement: `"token": "__MASKED_TOKEN__"`,
		},
		{
			Name:        "password",
			Regex:       regexp.MustCompile(`(?i)(?:password|passwd|pwd)["']?\s*[:=]\s*["']?([^"'\s\n]{6,})["']?`),
			Replacement: `"password": "__MASKED_PASSWORD__"`,
		},
		{
			Name:        "slack_token",
			Regex:       regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]{10,72}`),
			Replacement: `__MASKED_SLACK_TOKEN__`,
		},
	}
}

// New compiles the built-in patterns plus any extras from config. Invalid
// extra patterns are logged and skipped so a bad config entry cannot take
// masking down with it.
func New(cfg config.MaskingConfig) *Masker {
	m := &Masker{
		patterns: builtinPatterns(),
		logger:   slog.Default().With("component", "masker"),
	}
	for _, extra := range cfg.ExtraPatterns {
		compiled, err := regexp.Compile(extra.Pattern)
		if err != nil {
			m.logger.Error("Failed to compile extra masking pattern, skipping",
				"pattern", extra.Name, "error", err)
			continue
		}
		m.patterns = append(m.patterns, &CompiledPattern{
			Name:        extra.Name,
			Regex:       compiled,
			Replacement: extra.Replacement,
		})
	}
	return m
}

// Mask replaces every secret match in text and returns the result. Text with
// no matches comes back unchanged.
func (m *Masker) Mask(text string) string {
	if text == "" {
		return text
	}
	masked := text
	for _, p := range m.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}
