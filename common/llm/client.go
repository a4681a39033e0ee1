package llm

import (
	"context"
	"encoding/json"
)

// GenerationParams tunes a single completion request
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client defines the standard interface for any LLM backend
type Client interface {
	// Generate returns the raw completion text for a prompt
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// GenerateJSON asks the model for a JSON object and returns the raw
	// message. Callers unmarshal into their own response types.
	GenerateJSON(ctx context.Context, system, prompt string) (json.RawMessage, error)
}
