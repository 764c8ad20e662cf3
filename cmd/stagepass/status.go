// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// ServiceStatus holds health information reported by a running service.
type ServiceStatus struct {
	Addr    string `json:"addr"`
	Running bool   `json:"running"`
	Live    bool   `json:"live"`
	Ready   bool   `json:"ready"`
	Error   string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	metricsAddr string
	jsonOutput  bool
}

// newStatusCmd creates the status subcommand with all flags configured.
func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of the running auth service",
		Long:  `Query the health probes of a running auth service.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", "127.0.0.1:9100", "metrics/health address of the running service")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	status := queryServiceStatus(cfg.metricsAddr)

	if cfg.jsonOutput {
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(string(out))
		return nil
	}

	cmd.Println(formatStatusTable(status))
	return nil
}

// queryServiceStatus probes the liveness and readiness endpoints.
func queryServiceStatus(addr string) ServiceStatus {
	status := ServiceStatus{Addr: addr}

	client := &http.Client{Timeout: 2 * time.Second}

	live, err := probe(client, "http://"+addr+"/healthz/liveness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.Running = true
	status.Live = live

	ready, err := probe(client, "http://"+addr+"/healthz/readiness")
	if err != nil {
		// Liveness succeeded but readiness failed to answer
		status.Error = fmt.Sprintf("readiness probe failed: %v", err)
		return status
	}
	status.Ready = ready

	return status
}

// probe returns true when the endpoint answers 200.
func probe(client *http.Client, url string) (bool, error) {
	resp, err := client.Get(url)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	return resp.StatusCode == http.StatusOK, nil
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ServiceStatus) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ADDR\tSTATUS\tLIVE\tREADY")
	_, _ = fmt.Fprintln(w, "----\t------\t----\t-----")

	if status.Running {
		_, _ = fmt.Fprintf(w, "%s\trunning\t%v\t%v\n", status.Addr, status.Live, status.Ready)
	} else {
		reason := "not running"
		if status.Error != "" {
			reason = status.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t-\t-\n", status.Addr, reason)
	}

	_ = w.Flush()
	return strings.TrimRight(sb.String(), "\n")
}
