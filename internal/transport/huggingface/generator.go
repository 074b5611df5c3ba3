package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hollis-labs/ragline/internal/domain"
	"github.com/hollis-labs/ragline/internal/metrics"
)

// Generator calls the OpenAI-compatible chat completion route of the
// Inference API.
type Generator struct {
	cfg    Config
	client *http.Client
}

// NewGenerator creates a Hugging Face generation provider.
func NewGenerator(cfg Config) *Generator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Generator{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// ModelName returns the generation model identifier.
func (g *Generator) ModelName() string { return g.cfg.Model }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate produces a completion for the system and user prompts.
func (g *Generator) Generate(ctx context.Context, system, user string) (string, error) {
	url := fmt.Sprintf("%s/models/%s/v1/chat/completions", g.cfg.BaseURL, g.cfg.Model)

	body, err := doPost(ctx, g.client, g.cfg.APIKey, url, chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
		MaxTokens:   512,
	})
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(providerName, g.cfg.Model, "error").Inc()
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(providerName, g.cfg.Model, "error").Inc()
		return "", fmt.Errorf("decode completion response: %v: %w", err, domain.ErrProvider)
	}
	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(providerName, g.cfg.Model, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrProvider)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(providerName, g.cfg.Model, "success").Inc()
	return resp.Choices[0].Message.Content, nil
}
