package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question against the indexed corpus",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().Int("top-k", 0, "number of contexts to use (0 = server default)")
	queryCmd.Flags().Bool("no-rerank", false, "skip cross-encoder reranking")
	queryCmd.Flags().Bool("stream", false, "stream the answer as it is generated")
	queryCmd.Flags().Bool("json", false, "print the raw response JSON")
}

type queryPayload struct {
	Query       string `json:"query"`
	TopK        int    `json:"top_k,omitempty"`
	UseReranker bool   `json:"use_reranker"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	topK, _ := cmd.Flags().GetInt("top-k")
	noRerank, _ := cmd.Flags().GetBool("no-rerank")
	stream, _ := cmd.Flags().GetBool("stream")
	rawJSON, _ := cmd.Flags().GetBool("json")

	payload, err := json.Marshal(queryPayload{
		Query:       args[0],
		TopK:        topK,
		UseReranker: !noRerank,
	})
	if err != nil {
		return err
	}

	if stream {
		return streamQuery(cmd, payload)
	}

	resp, err := httpClient().Post(serverURL+"/query", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if rawJSON {
		cmd.Println(string(body))
		return nil
	}

	var answer struct {
		Response  string `json:"response"`
		Citations []struct {
			CitationID int     `json:"citation_id"`
			Filename   string  `json:"filename"`
			PageNumber *int    `json:"page_number"`
			Confidence float32 `json:"confidence_score"`
		} `json:"citations"`
		ProcessingTimeMs int64 `json:"processing_time_ms"`
	}
	if err := json.Unmarshal(body, &answer); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}

	cmd.Println(answer.Response)
	if len(answer.Citations) > 0 {
		cmd.Println()
		for _, c := range answer.Citations {
			loc := c.Filename
			if c.PageNumber != nil {
				loc = fmt.Sprintf("%s p.%d", c.Filename, *c.PageNumber)
			}
			cmd.Printf("  [%d] %s (%.2f)\n", c.CitationID, loc, c.Confidence)
		}
	}
	cmd.Printf("\n(%dms)\n", answer.ProcessingTimeMs)
	return nil
}

func streamQuery(cmd *cobra.Command, payload []byte) error {
	resp, err := httpClient().Post(serverURL+"/query/stream", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var citationCount int
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		var frame struct {
			Citations        []json.RawMessage `json:"citations"`
			Content          string            `json:"content"`
			Done             bool              `json:"done"`
			ProcessingTimeMs int64             `json:"processing_time_ms"`
			Error            string            `json:"error"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &frame); err != nil {
			continue
		}

		switch {
		case frame.Error != "":
			cmd.Println()
			return fmt.Errorf("%s", frame.Error)
		case frame.Done:
			cmd.Printf("\n\n(%d citations, %dms)\n", citationCount, frame.ProcessingTimeMs)
			return nil
		case frame.Content != "":
			cmd.Print(frame.Content)
		case frame.Citations != nil:
			citationCount = len(frame.Citations)
		}
	}
	return scanner.Err()
}
