package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/hollis-labs/ragline/internal/domain"
	"github.com/hollis-labs/ragline/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

func TestEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model/pipeline/feature-extraction" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		var req featureExtractionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Inputs) != 2 {
			t.Errorf("got %d inputs, want 2", len(req.Inputs))
		}
		json.NewEncoder(w).Encode([][]float32{{0.1, 0.2}, {0.3, 0.4}})
	}))
	defer server.Close()

	emb := NewEmbedder(Config{APIKey: "test-key", BaseURL: server.URL, Model: "test-model", Dimensions: 2})

	vectors, err := emb.EmbedBatch(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 0.1 || vectors[1][1] != 0.4 {
		t.Fatalf("got %v", vectors)
	}
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]float32{{0.1, 0.2}})
	}))
	defer server.Close()

	emb := NewEmbedder(Config{BaseURL: server.URL, Model: "test-model"})

	_, err := emb.EmbedBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("got %v, want ErrProvider", err)
	}
}

func TestEmbedBatchDimensionDrift(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]float32{{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	emb := NewEmbedder(Config{BaseURL: server.URL, Model: "test-model", Dimensions: 2})

	_, err := emb.EmbedBatch(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("got %v, want ErrDimensionMismatch", err)
	}
}

func TestEmbedBatchAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "model is loading"})
	}))
	defer server.Close()

	emb := NewEmbedder(Config{BaseURL: server.URL, Model: "test-model"})

	_, err := emb.EmbedBatch(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("got %v, want ErrProvider", err)
	}
}

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{
				{Message: chatMessage{Role: "assistant", Content: "grounded answer"}},
			},
		})
	}))
	defer server.Close()

	gen := NewGenerator(Config{BaseURL: server.URL, Model: "test-model"})

	answer, err := gen.Generate(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if answer != "grounded answer" {
		t.Errorf("answer = %q", answer)
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer server.Close()

	gen := NewGenerator(Config{BaseURL: server.URL, Model: "test-model"})

	_, err := gen.Generate(context.Background(), "system", "user")
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("got %v, want ErrProvider", err)
	}
}
