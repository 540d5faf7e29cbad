package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go template
// syntax ({{.VAR_NAME}}) instead of $VAR, so literal $ characters survive:
// regex patterns in masking rules, passwords, connection strings.
//
// Examples:
//   - {{.ASCENT_DATABASE_DSN}} → value of ASCENT_DATABASE_DSN
//   - {{.DB_HOST}}:{{.DB_PORT}} → both variables expanded
//   - pattern: "^sk-[A-Za-z0-9]+$" → preserved literally
//
// Missing variables expand to the empty string; validation catches required
// fields left empty. Malformed templates pass the original bytes through so
// the YAML parser can produce a clearer error.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			envMap[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}
	return buf.Bytes()
}
