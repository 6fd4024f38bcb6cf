package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage the document registry",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	RunE:  runDocumentsList,
}

var documentsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus counters",
	RunE:  runDocumentsStats,
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete [document-id]",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsDelete,
}

var documentsUploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a file for ingestion",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsUpload,
}

func init() {
	rootCmd.AddCommand(documentsCmd)
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsStatsCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
	documentsCmd.AddCommand(documentsUploadCmd)
}

func getJSON(path string, out any) error {
	resp, err := httpClient().Get(serverURL + path)
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
	return json.Unmarshal(body, out)
}

func runDocumentsList(cmd *cobra.Command, args []string) error {
	var resp struct {
		Documents []struct {
			DocumentID string `json:"document_id"`
			Filename   string `json:"filename"`
			FileType   string `json:"file_type"`
			NumChunks  int    `json:"num_chunks"`
			UploadedAt string `json:"uploaded_at"`
		} `json:"documents"`
		TotalCount int `json:"total_count"`
	}
	if err := getJSON("/documents", &resp); err != nil {
		return err
	}

	if resp.TotalCount == 0 {
		cmd.Println("no documents indexed")
		return nil
	}
	for _, d := range resp.Documents {
		cmd.Printf("%s  %-30s  %-5s  %4d chunks  %s\n",
			d.DocumentID, d.Filename, d.FileType, d.NumChunks, d.UploadedAt)
	}
	return nil
}

func runDocumentsStats(cmd *cobra.Command, args []string) error {
	var resp struct {
		TotalDocuments int   `json:"total_documents"`
		TotalChunks    int64 `json:"total_chunks"`
	}
	if err := getJSON("/documents/stats", &resp); err != nil {
		return err
	}
	cmd.Printf("documents: %d\nchunks:    %d\n", resp.TotalDocuments, resp.TotalChunks)
	return nil
}

func runDocumentsDelete(cmd *cobra.Command, args []string) error {
	req, err := http.NewRequest(http.MethodDelete, serverURL+"/documents/"+args[0], nil)
	if err != nil {
		return err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	cmd.Printf("deleted %s\n", args[0])
	return nil
}

func runDocumentsUpload(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(args[0]))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	resp, err := httpClient().Post(serverURL+"/upload", writer.FormDataContentType(), &buf)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ack struct {
		DocumentID string `json:"document_id"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(body, &ack); err != nil {
		return err
	}
	cmd.Printf("queued %s (%s)\n", ack.DocumentID, ack.Status)
	return nil
}
