package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nestscout/nestscout/internal/openrouter"
)

// OpenRouterEngine adapts the internal/openrouter.Client to the Engine
// interface. Models are hosted remotely, so it does not implement ModelManager.
type OpenRouterEngine struct {
	client *openrouter.Client
}

// NewOpenRouterEngine creates an engine for the OpenRouter API. An empty
// baseURL selects the public endpoint.
func NewOpenRouterEngine(apiKey, baseURL string) *OpenRouterEngine {
	return &OpenRouterEngine{client: openrouter.NewClientWithBaseURL(apiKey, baseURL)}
}

func (e *OpenRouterEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema json.RawMessage) (string, error) {
	req := openrouter.ChatRequest{Model: model}
	images := 0
	for _, m := range messages {
		if len(m.Images) == 0 {
			req.Messages = append(req.Messages, openrouter.Message{Role: m.Role, Content: m.Content})
			continue
		}
		parts := []openrouter.ContentPart{openrouter.TextPart(m.Content)}
		for _, img := range m.Images {
			parts = append(parts, openrouter.ImagePart(img.DataURL()))
		}
		images += len(m.Images)
		req.Messages = append(req.Messages, openrouter.Message{Role: m.Role, Content: parts})
	}
	if len(jsonSchema) > 0 {
		zero := 0.0
		req.ResponseFormat = &openrouter.ResponseFormat{Type: "json_object"}
		req.Temperature = &zero
	}

	start := time.Now()
	resp, err := e.client.Chat(ctx, req)
	slog.Debug("openrouter chat", "model", model, "images", images, "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
	if err != nil {
		return "", err
	}
	return resp.Content()
}

func (e *OpenRouterEngine) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := e.client.ListModels(ctx)
	return err == nil
}
