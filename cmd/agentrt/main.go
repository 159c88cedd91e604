// Package main provides the CLI entry point for agentrt, a demo harness for
// the agentic conversation runtime: it drives the plan/execute/reflect loop
// against scripted mock providers and a small built-in tool so the engine's
// behavior can be exercised and inspected without a live LLM backend.
//
// # Basic Usage
//
// Run a scripted conversation:
//
//	agentrt run --profile profile.yaml
//
// Validate a run profile without executing it:
//
//	agentrt validate --profile profile.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd(logger)
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached,
// separated from main for testability.
func buildRootCmd(logger *slog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentrt",
		Short: "agentrt - scripted demo harness for the agentic conversation runtime",
		Long: `agentrt drives the plan/execute/reflect loop against a run profile of
scripted mock providers and a small built-in calculator tool, without
requiring a live LLM backend.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(logger),
		buildValidateCmd(),
	)

	return rootCmd
}
