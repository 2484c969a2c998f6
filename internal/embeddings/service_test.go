package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/fyrsmithlabs/theodore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingsServer answers POST /embeddings like the OpenAI API,
// returning [len(text), index] for each input.
func fakeEmbeddingsServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i, in := range req.Input {
			data[i] = item{Object: "embedding", Embedding: []float32{float32(len(in)), float32(i)}, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid OpenAI", Config{BaseURL: "https://api.openai.com/v1", Model: "text-embedding-3-small", APIKey: "sk-test"}, false},
		{"valid TEI", Config{BaseURL: "http://localhost:8080/v1", Model: "BAAI/bge-small-en-v1.5"}, false},
		{"missing base URL", Config{Model: "m"}, true},
		{"missing model", Config{BaseURL: "http://x"}, true},
		{"negative batch", Config{BaseURL: "http://x", Model: "m", BatchSize: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.EmbeddingsConfig{BaseURL: "http://tei", Model: "bge", APIKey: "k"})
	assert.Equal(t, Config{BaseURL: "http://tei", Model: "bge", APIKey: "k"}, cfg)
}

func TestService_EmbedDocuments(t *testing.T) {
	srv, _ := fakeEmbeddingsServer(t, http.StatusOK)

	svc, err := NewService(Config{BaseURL: srv.URL, Model: "test-model"}, nil)
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"stripe", "adyen inc"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, float32(6), vectors[0][0])
	assert.Equal(t, float32(9), vectors[1][0])
}

func TestService_EmbedQuery(t *testing.T) {
	srv, calls := fakeEmbeddingsServer(t, http.StatusOK)

	svc, err := NewService(Config{BaseURL: srv.URL, Model: "test-model"}, nil)
	require.NoError(t, err)

	vector, err := svc.EmbedQuery(context.Background(), "payments")
	require.NoError(t, err)
	assert.Equal(t, float32(8), vector[0])
	assert.Equal(t, int32(1), calls.Load())
}

func TestService_EmptyInput(t *testing.T) {
	srv, calls := fakeEmbeddingsServer(t, http.StatusOK)
	svc, err := NewService(Config{BaseURL: srv.URL, Model: "m"}, nil)
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, calls.Load())
}

func TestService_ServerError(t *testing.T) {
	srv, _ := fakeEmbeddingsServer(t, http.StatusBadRequest)
	svc, err := NewService(Config{BaseURL: srv.URL, Model: "m"}, nil)
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	_, err = svc.EmbedQuery(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}
