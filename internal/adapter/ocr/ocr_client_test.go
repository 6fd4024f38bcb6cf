package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestExtract_DecodesPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/extract", r.URL.Path)

		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/pdf", req.ContentType)
		raw, err := base64.StdEncoding.DecodeString(req.Data)
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF-1.7"), raw)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"pages": []map[string]any{
				{"page_number": 1, "text": "first page"},
				{"page_number": 2, "text": "second page"},
			},
			"model": "docling-v2",
		})
	}))
	defer server.Close()

	client := NewOCRClient(server.URL, 5*time.Second, testLogger())
	result, err := client.Extract(context.Background(), []byte("%PDF-1.7"), "application/pdf")
	require.NoError(t, err)

	require.Len(t, result.Pages, 2)
	assert.Equal(t, 2, result.Pages[1].PageNumber)
	// No top-level text in the response, so the pages are joined.
	assert.Equal(t, "first page\n\nsecond page", result.Text)
}

func TestExtract_ServiceErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewOCRClient(server.URL, 5*time.Second, testLogger())
	_, err := client.Extract(context.Background(), []byte("data"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

// Version must stay safe to read while extractions run on other goroutines.
func TestVersion_StableDuringConcurrentExtracts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "hello", "model": "docling-v2"})
	}))
	defer server.Close()

	client := NewOCRClient(server.URL, 5*time.Second, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Extract(context.Background(), []byte("data"), "text/plain")
			assert.NoError(t, err)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "ocr-http-v1", client.Version())
		}()
	}
	wg.Wait()

	assert.Equal(t, "ocr-http-v1", client.Version())
}
