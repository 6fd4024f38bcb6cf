package main

import (
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the server's liveness and readiness endpoints",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	var live struct {
		Status string `json:"status"`
	}
	if err := getJSON("/health", &live); err != nil {
		return err
	}
	cmd.Printf("health: %s\n", live.Status)

	var ready struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := getJSON("/readyz", &ready); err != nil {
		cmd.Printf("ready:  unavailable (%v)\n", err)
		return nil
	}
	cmd.Printf("ready:  %s\n", ready.Status)
	return nil
}
