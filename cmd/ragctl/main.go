// Package main is the entry point for the ragctl CLI, a thin client for the
// retrieval-king HTTP API.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
	version   = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "retrieval-king query and admin CLI",
	Long: `ragctl talks to a running retrieval-king server.

Example usage:
  ragctl query "what is the refund policy"   # Ask a question
  ragctl query --stream "summarize chapter 2"
  ragctl documents list                      # List indexed documents
  ragctl documents delete <id>               # Remove a document
  ragctl health                              # Probe the server`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func httpClient() *http.Client {
	return &http.Client{Timeout: timeout}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("RAGCTL_SERVER", "http://localhost:8000"), "server base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")
	rootCmd.Version = version
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
