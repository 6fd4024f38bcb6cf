package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"retrieval-king/internal/domain"
)

type extractRequest struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

type extractResponse struct {
	Text  string `json:"text"`
	Pages []struct {
		PageNumber int    `json:"page_number"`
		Text       string `json:"text"`
	} `json:"pages"`
	Model string `json:"model"`
}

// OCRClient implements domain.TextExtractor via HTTP calls to an OCR
// extraction service. File bytes travel base64-encoded in a JSON body.
type OCRClient struct {
	BaseURL string
	Client  *http.Client
	logger  *slog.Logger
}

func NewOCRClient(baseURL string, timeout time.Duration, logger *slog.Logger, client ...*http.Client) *OCRClient {
	var c *http.Client
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	} else {
		c = &http.Client{Timeout: timeout}
	}
	return &OCRClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  c,
		logger:  logger,
	}
}

// Extract sends the file to the OCR service and returns its text, page by
// page when the service reports page boundaries.
func (c *OCRClient) Extract(ctx context.Context, data []byte, contentType string) (*domain.ExtractResult, error) {
	startTime := time.Now()

	reqBody := extractRequest{
		ContentType: contentType,
		Data:        base64.StdEncoding.EncodeToString(data),
	}
	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extract request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/extract", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		c.logger.Warn("text_extraction_failed",
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))
		return nil, fmt.Errorf("failed to call extract endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extract endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var extractResp extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&extractResp); err != nil {
		return nil, fmt.Errorf("failed to decode extract response: %w", err)
	}

	result := &domain.ExtractResult{Text: extractResp.Text}
	for _, p := range extractResp.Pages {
		result.Pages = append(result.Pages, domain.ExtractedPage{
			PageNumber: p.PageNumber,
			Text:       p.Text,
		})
	}
	if result.Text == "" && len(result.Pages) > 0 {
		texts := make([]string, len(result.Pages))
		for i, p := range result.Pages {
			texts[i] = p.Text
		}
		result.Text = strings.Join(texts, "\n\n")
	}
	c.logger.Info("text_extraction_completed",
		slog.Int("page_count", len(result.Pages)),
		slog.Int("text_length", len(result.Text)),
		slog.String("model", extractResp.Model),
		slog.Int64("elapsed_ms", time.Since(startTime).Milliseconds()))

	return result, nil
}

// Version identifies the extraction client. The model the service actually
// used is logged per call; it is not cached here so Version stays safe to
// read from concurrent workers.
func (c *OCRClient) Version() string {
	return "ocr-http-v1"
}
