package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"retrieval-king/internal/domain"
)

const (
	rewriteTemperature = 0.1
	rewriteMaxTokens   = 200
	answerTemperature  = 0.3
	answerMaxTokens    = 1000
)

const rewriteSystemPrompt = "You are a query optimization assistant. " +
	"Analyze if the user's query is complex, vague, or would benefit from being broken down into multiple queries. " +
	"Respond with a JSON object containing: " +
	`{"should_rewrite": boolean, "rewritten_queries": [list of rewrites] or null}`

const answerSystemPrompt = "You are a helpful assistant that answers questions based on provided contexts. " +
	"Provide accurate, concise answers grounded in the contexts provided. " +
	"When referencing information from a context, use inline citations like [1], [2], etc. " +
	"to indicate which context the information comes from."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

type rewriteVerdict struct {
	ShouldRewrite    bool     `json:"should_rewrite"`
	RewrittenQueries []string `json:"rewritten_queries"`
}

// OpenAIGenerator talks to an OpenAI-compatible chat completions endpoint.
// One client serves both the rewriter and the answer generator, each with its
// own model.
type OpenAIGenerator struct {
	BaseURL        string
	APIKey         string
	RewriterModel  string
	GeneratorModel string
	Client         *http.Client
	logger         *slog.Logger
}

// NewOpenAIGenerator constructs a generator client. If client is nil, a
// default http.Client is created with the given timeout.
func NewOpenAIGenerator(baseURL, apiKey, rewriterModel, generatorModel string, timeout time.Duration, logger *slog.Logger, client ...*http.Client) *OpenAIGenerator {
	var c *http.Client
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	} else {
		c = &http.Client{Timeout: timeout}
	}
	return &OpenAIGenerator{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		APIKey:         apiKey,
		RewriterModel:  rewriterModel,
		GeneratorModel: generatorModel,
		Client:         c,
		logger:         logger,
	}
}

// RewriteQuery asks the rewriter model whether the query should be split.
// Unparseable model output is treated as a "do not rewrite" verdict rather
// than an error; transport failures are returned to the caller.
func (g *OpenAIGenerator) RewriteQuery(ctx context.Context, query string) (*domain.RewriteDecision, error) {
	reqBody := chatRequest{
		Model: g.RewriterModel,
		Messages: []chatMessage{
			{Role: "system", Content: rewriteSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Query: %s", query)},
		},
		Temperature:    rewriteTemperature,
		MaxTokens:      rewriteMaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	content, err := g.chat(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	var verdict rewriteVerdict
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		g.logger.Warn("rewrite_verdict_unparseable",
			slog.String("content", truncateString(content, 200)))
		return &domain.RewriteDecision{ShouldRewrite: false}, nil
	}

	return &domain.RewriteDecision{
		ShouldRewrite: verdict.ShouldRewrite,
		Variants:      verdict.RewrittenQueries,
	}, nil
}

// GenerateAnswer drafts an answer from the ordered contexts, instructing the
// model to cite them inline by bracket index.
func (g *OpenAIGenerator) GenerateAnswer(ctx context.Context, query string, contexts []string) (string, error) {
	start := time.Now()
	reqBody := chatRequest{
		Model: g.GeneratorModel,
		Messages: []chatMessage{
			{Role: "system", Content: answerSystemPrompt},
			{Role: "user", Content: buildUserPrompt(query, contexts)},
		},
		Temperature: answerTemperature,
		MaxTokens:   answerMaxTokens,
	}

	content, err := g.chat(ctx, reqBody)
	if err != nil {
		return "", err
	}

	g.logger.Info("answer_generation_completed",
		slog.Int("context_count", len(contexts)),
		slog.Int("answer_length", len(content)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	return content, nil
}

// GenerateAnswerStream is GenerateAnswer over a server-sent-event stream.
// Deltas arrive on the first channel in order; both channels close when the
// stream ends.
func (g *OpenAIGenerator) GenerateAnswerStream(ctx context.Context, query string, contexts []string) (<-chan string, <-chan error, error) {
	reqBody := chatRequest{
		Model: g.GeneratorModel,
		Messages: []chatMessage{
			{Role: "system", Content: answerSystemPrompt},
			{Role: "user", Content: buildUserPrompt(query, contexts)},
		},
		Temperature: answerTemperature,
		MaxTokens:   answerMaxTokens,
		Stream:      true,
	}

	resp, err := g.post(ctx, reqBody)
	if err != nil {
		return nil, nil, err
	}

	deltas := make(chan string, 8)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				if payload == "[DONE]" {
					return
				}
				continue
			}

			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				g.logger.Warn("stream_chunk_unparseable",
					slog.String("payload", truncateString(payload, 200)))
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if content := chunk.Choices[0].Delta.Content; content != "" {
				select {
				case <-ctx.Done():
					return
				case deltas <- content:
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("stream read failed: %w", err)
		}
	}()

	return deltas, errs, nil
}

// Version returns the generator model identifier.
func (g *OpenAIGenerator) Version() string {
	return g.GeneratorModel
}

// buildUserPrompt renders the 1-indexed bracketed context block. Bracket
// numbers match citation IDs one-to-one.
func buildUserPrompt(query string, contexts []string) string {
	var b strings.Builder
	b.WriteString("Contexts:\n")
	for i, c := range contexts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, c)
	}
	fmt.Fprintf(&b, "\n\nQuestion: %s", query)
	return b.String()
}

func (g *OpenAIGenerator) chat(ctx context.Context, reqBody chatRequest) (string, error) {
	resp, err := g.post(ctx, reqBody)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

func (g *OpenAIGenerator) post(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", g.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, truncateString(string(body), 500))
	}
	return resp, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
