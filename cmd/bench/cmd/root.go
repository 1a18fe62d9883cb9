// Package cmd implements the bench CLI's cobra command tree. Unlike the
// teacher's CLI, there is no HTTP client in between: every subcommand
// drives internal/scheduler, internal/catalog, internal/planner, and
// internal/result directly, in-process.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/loadbench/loadbench/cmd/bench/format"
)

var (
	outputFormat string
	resultsDir   string
)

// RootCmd is the top-level CLI command.
var RootCmd = &cobra.Command{
	Use:   "bench",
	Short: "loadbench CLI — benchmark LLM inference endpoints across cloud GPU instances",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, csv")
	RootCmd.PersistentFlags().StringVar(&resultsDir, "results-dir", envOrDefault("LOADBENCH_RESULTS_DIR", "./results"), "Directory holding saved benchmark_<id> result trees")
}

func getFormat() format.OutputFormat {
	switch outputFormat {
	case "json":
		return format.FormatJSON
	case "csv":
		return format.FormatCSV
	default:
		return format.FormatTable
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
