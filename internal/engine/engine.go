package engine

import (
	"context"
	"encoding/json"
)

// Engine abstracts an inference backend (local Ollama or remote OpenRouter).
// Extraction, location detection and scoring use this interface instead of
// depending on a concrete client.
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's response.
	// When jsonSchema is non-empty, structured JSON output is requested.
	Chat(ctx context.Context, model string, messages []Message, jsonSchema json.RawMessage) (string, error)

	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool
}

// ModelManager is implemented by backends that host models locally and can
// download missing ones.
type ModelManager interface {
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
