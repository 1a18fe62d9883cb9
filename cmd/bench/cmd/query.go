package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loadbench/loadbench/cmd/bench/format"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query previously saved benchmark results",
	Long: `Scan --results-dir for saved benchmark_<id> trees and list one row per
scenario, optionally filtered by model or instance type.

Examples:
  bench query --model meta-llama/Llama-3.1-8B
  bench query --instance-type g5.xlarge -o json`,
	RunE: runQuery,
}

var (
	queryModel        string
	queryInstanceType string
)

func init() {
	queryCmd.Flags().StringVar(&queryModel, "model", "", "Filter by model HuggingFace ID")
	queryCmd.Flags().StringVar(&queryInstanceType, "instance-type", "", "Filter by catalog instance type")
	RootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	results, err := loadAllResults(resultsDir)
	if err != nil {
		return err
	}
	rows := flattenRows(results)

	filtered := rows[:0]
	for _, r := range rows {
		if queryModel != "" && r.ModelID != queryModel {
			continue
		}
		if queryInstanceType != "" && r.InstanceType != queryInstanceType {
			continue
		}
		filtered = append(filtered, r)
	}

	if len(filtered) == 0 {
		fmt.Fprintln(os.Stderr, "No results found.")
		return nil
	}

	switch getFormat() {
	case format.FormatJSON:
		return format.JSON(filtered)
	case format.FormatCSV:
		return format.CSV(os.Stdout, queryHeaders(), queryRows(filtered))
	default:
		format.Table(queryHeaders(), queryRows(filtered))
		fmt.Fprintf(os.Stderr, "\n%d result(s)\n", len(filtered))
		return nil
	}
}

func queryHeaders() []string {
	return []string{
		"Benchmark", "Model", "Instance", "Scenario", "Status",
		"TTFT p50", "E2E p50", "Tput(agg)", "RPS",
	}
}

func queryRows(rows []resultRow) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{
			r.BenchmarkID,
			r.ModelID,
			r.InstanceType,
			r.ScenarioID,
			r.Status,
			format.PtrF64(r.Summary.TTFTP50Ms, 1),
			format.PtrF64(r.Summary.E2ELatencyP50Ms, 1),
			format.PtrF64(r.Summary.ThroughputAggregateTPS, 0),
			format.PtrF64(r.Summary.RequestsPerSecond, 2),
		}
	}
	return out
}
