package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Embed returns one vector for text. Both the OpenAI list shape
// (data[0].embedding), the nested embeddings[0].embedding shape and a flat
// top-level embedding are accepted.
func (c *OpenAICompatibleClient) Embed(ctx context.Context, model, text string, dimension int) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	reqBody := map[string]interface{}{
		"model": model,
		"input": text,
	}
	if dimension > 0 {
		reqBody["dimensions"] = dimension
	}

	raw, err := c.post(ctx, "/embeddings", reqBody)
	if err != nil {
		return nil, err
	}

	vec, err := parseEmbedding(raw)
	if err != nil {
		return nil, err
	}
	if dimension > 0 && len(vec) != dimension {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d: %w", len(vec), dimension, ErrMalformed)
	}
	return vec, nil
}

func parseEmbedding(raw []byte) ([]float32, error) {
	type item struct {
		Embedding []float32 `json:"embedding"`
	}
	var parsed struct {
		Data       []item    `json:"data"`
		Embeddings []item    `json:"embeddings"`
		Embedding  []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %v: %w", err, ErrMalformed)
	}
	switch {
	case len(parsed.Embeddings) > 0 && len(parsed.Embeddings[0].Embedding) > 0:
		return parsed.Embeddings[0].Embedding, nil
	case len(parsed.Data) > 0 && len(parsed.Data[0].Embedding) > 0:
		return parsed.Data[0].Embedding, nil
	case len(parsed.Embedding) > 0:
		return parsed.Embedding, nil
	default:
		return nil, fmt.Errorf("no embedding field in response: %w", ErrMalformed)
	}
}

// Embedder pins an embedding model on the client.
type Embedder struct {
	client *OpenAICompatibleClient
	model  string
}

func NewEmbedder(client *OpenAICompatibleClient, model string) *Embedder {
	return &Embedder{client: client, model: model}
}

func (e *Embedder) Embed(ctx context.Context, text string, dimension int) ([]float32, error) {
	return e.client.Embed(ctx, e.model, text, dimension)
}
