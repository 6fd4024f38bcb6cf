package rerank

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"retrieval-king/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerankerClient_Score_Success(t *testing.T) {
	// Setup mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/rerank", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req RerankRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)

		assert.Equal(t, "test query", req.Query)
		assert.Equal(t, 3, len(req.Candidates))
		assert.Equal(t, "bge-reranker-v2-m3", req.Model)

		// Return reranked results (index 1 has highest score)
		resp := RerankResponse{
			Results: []RerankResponseResult{
				{Index: 1, Score: 0.95},
				{Index: 0, Score: 0.85},
				{Index: 2, Score: 0.75},
			},
			Model: "bge-reranker-v2-m3",
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := NewRerankerClient(server.URL, "bge-reranker-v2-m3", 30*time.Second, logger)

	texts := []string{
		"Content about AI",
		"Content about machine learning",
		"Content about data science",
	}

	scores, err := client.Score(context.Background(), "test query", texts)
	require.NoError(t, err)

	assert.Len(t, scores, 3)
	assert.Equal(t, domain.RerankScore{Index: 1, Score: 0.95}, scores[0])
	assert.Equal(t, domain.RerankScore{Index: 0, Score: 0.85}, scores[1])
	assert.Equal(t, domain.RerankScore{Index: 2, Score: 0.75}, scores[2])
}

func TestRerankerClient_Score_EmptyTexts(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := NewRerankerClient("http://localhost:8001", "bge-reranker-v2-m3", 30*time.Second, logger)

	scores, err := client.Score(context.Background(), "test query", []string{})
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestRerankerClient_Score_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := NewRerankerClient(server.URL, "bge-reranker-v2-m3", 30*time.Second, logger)

	_, err := client.Score(context.Background(), "test query", []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestRerankerClient_Score_InvalidIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := RerankResponse{
			Results: []RerankResponseResult{
				{Index: 5, Score: 0.9},
			},
			Model: "bge-reranker-v2-m3",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := NewRerankerClient(server.URL, "bge-reranker-v2-m3", 30*time.Second, logger)

	_, err := client.Score(context.Background(), "test query", []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid result index")
}

func TestRerankerClient_Score_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	client := NewRerankerClient(server.URL, "bge-reranker-v2-m3", 30*time.Second, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.Score(ctx, "test query", []string{"a"})
	require.Error(t, err)
}
