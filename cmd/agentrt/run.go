package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kestrelai/agentrt/internal/agent"
	"github.com/kestrelai/agentrt/pkg/models"
)

func buildRunCmd(logger *slog.Logger) *cobra.Command {
	var profilePath string
	var metricsAddr string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one scripted run against a run profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := LoadRunProfile(profilePath)
			if err != nil {
				return err
			}

			invocationID := uuid.NewString()
			logger = logger.With("invocation_id", invocationID, "service", profile.Service)

			if metricsAddr != "" {
				go serveMetrics(metricsAddr, logger)
			}

			pool, providerModels, err := buildPool(profile)
			if err != nil {
				return fmt.Errorf("build provider pool: %w", err)
			}

			registry := buildToolRegistry()
			loop := buildLoop(profile, registry, pool)
			opts := buildOptions(profile, logger)

			initial := agent.NewAgentContext(
				[]models.Message{{Role: models.RoleUser, Content: profile.Message}},
				registry, pool, opts, providerModels,
			)
			logger.Info("run starting", "run_id", initial.RunID, "planner", profile.Planner, "strategy", profile.Strategy)

			result := loop.Run(cmd.Context(), initial)

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return printRunResult(out, initial.RunID, result)
		},
	}

	cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "Path to a run profile YAML file (required)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "If set, serve Prometheus metrics at this address (e.g. :9090) for the run's duration")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full RunResult as JSON instead of a summary")
	_ = cmd.MarkFlagRequired("profile")

	return cmd
}

func buildValidateCmd() *cobra.Command {
	var profilePath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse and validate a run profile without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := LoadRunProfile(profilePath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run profile valid: %d provider(s), planner=%s, strategy=%s\n",
				len(profile.Providers), profile.Planner, profile.Strategy)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "Path to a run profile YAML file (required)")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

func printRunResult(out io.Writer, runID string, result *agent.RunResult) error {
	status := "complete"
	if result.Error != nil {
		status = "stopped: " + result.Error.Error()
	}
	fmt.Fprintf(out, "run %s %s in %s\n", runID, status, result.Metrics.Duration)
	fmt.Fprintf(out, "  steps: provider_calls=%d tool_executions=%d cost_savings=$%.4f efficiency=%.2f\n",
		result.Metrics.ProviderCalls, result.Metrics.ToolExecutions, result.Metrics.CostSavings, result.Metrics.Efficiency)
	fmt.Fprintln(out, "  messages:")
	for _, m := range result.Messages {
		fmt.Fprintf(out, "    [%s] %s\n", m.Role, summarizeContent(m))
	}
	return nil
}

func summarizeContent(m models.Message) string {
	if len(m.ToolCalls) > 0 {
		return fmt.Sprintf("(tool call: %s) %s", m.ToolCalls[0].Name, m.Content)
	}
	if len(m.ToolResults) > 0 {
		return fmt.Sprintf("(tool result) %s", m.ToolResults[0].Content)
	}
	return m.Content
}
