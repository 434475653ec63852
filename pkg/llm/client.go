// Package llm wraps the chat-completion providers the pipeline can talk to.
package llm

import (
	"context"
	"strings"

	"github.com/invopop/jsonschema"
)

// Client produces one completion. When schema is non-nil the provider is asked
// for JSON conforming to it; the raw text is returned either way.
type Client interface {
	Complete(ctx context.Context, system, prompt string, schema any) (string, error)
}

// GenerateSchema reflects T into a strict JSON schema suitable for structured outputs.
func GenerateSchema[T any]() any {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// StripFences removes a surrounding markdown code fence (```json, ```python, or bare ```).
func StripFences(s string) string {
	cleaned := strings.TrimSpace(s)
	if !strings.HasPrefix(cleaned, "```") || !strings.HasSuffix(cleaned, "```") || len(cleaned) < 6 {
		return cleaned
	}
	cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "```"), "```")
	// Drop the info string on the opening fence line, if any.
	if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 && !strings.ContainsAny(cleaned[:nl], "{[\"") {
		cleaned = cleaned[nl+1:]
	}
	return strings.TrimSpace(cleaned)
}
