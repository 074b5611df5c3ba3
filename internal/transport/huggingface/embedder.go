// Package huggingface provides embedding and generation providers backed by
// the Hugging Face Inference API.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hollis-labs/ragline/internal/domain"
	"github.com/hollis-labs/ragline/internal/metrics"
)

const (
	providerName   = "huggingface"
	defaultBaseURL = "https://router.huggingface.co/hf-inference"
)

// Config holds Inference API connection settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// Embedder calls the feature-extraction pipeline for a sentence embedding
// model.
type Embedder struct {
	cfg    Config
	client *http.Client
}

// NewEmbedder creates a Hugging Face embedding provider.
func NewEmbedder(cfg Config) *Embedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Embedder{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// ModelName returns the model tag stored alongside vectors.
func (e *Embedder) ModelName() string { return e.cfg.Model }

// Dimensions returns the configured vector width.
func (e *Embedder) Dimensions() int { return e.cfg.Dimensions }

type featureExtractionRequest struct {
	Inputs []string `json:"inputs"`
}

// EmbedBatch embeds all texts in one request. The pipeline returns one
// vector per input, in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	url := fmt.Sprintf("%s/models/%s/pipeline/feature-extraction", e.cfg.BaseURL, e.cfg.Model)

	start := time.Now()
	body, err := e.post(ctx, url, featureExtractionRequest{Inputs: texts})
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.cfg.Model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.cfg.Model, "api_error").Inc()
		return nil, err
	}

	var vectors [][]float32
	if err := json.Unmarshal(body, &vectors); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.cfg.Model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.cfg.Model, "bad_response").Inc()
		return nil, fmt.Errorf("decode feature-extraction response: %v: %w", err, domain.ErrProvider)
	}
	if len(vectors) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.cfg.Model, "error").Inc()
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs: %w",
			len(vectors), len(texts), domain.ErrProvider)
	}
	for _, vec := range vectors {
		if e.cfg.Dimensions > 0 && len(vec) != e.cfg.Dimensions {
			return nil, fmt.Errorf("provider returned %d-dimensional vector, expected %d: %w",
				len(vec), e.cfg.Dimensions, domain.ErrDimensionMismatch)
		}
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.cfg.Model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, e.cfg.Model).Observe(duration.Seconds())
	return vectors, nil
}

// post sends a JSON request and returns the raw response body. Non-2xx
// statuses are reported as provider errors with the body's error message.
func (e *Embedder) post(ctx context.Context, url string, payload any) ([]byte, error) {
	return doPost(ctx, e.client, e.cfg.APIKey, url, payload)
}

func doPost(ctx context.Context, client *http.Client, apiKey, url string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %v: %w", err, domain.ErrProvider)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %v: %w", err, domain.ErrProvider)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("inference API error %d: %s: %w",
			resp.StatusCode, apiErrorMessage(body), domain.ErrProvider)
	}
	return body, nil
}

func apiErrorMessage(body []byte) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		return parsed.Error
	}
	return string(body)
}
