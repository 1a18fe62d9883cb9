package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loadbench/loadbench/cmd/bench/format"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export saved benchmark results to JSON or CSV",
	Long: `Export every scenario row under --results-dir (optionally filtered by
model) in JSON or CSV format.

By default exports to stdout. Use --file to write to a file.

Examples:
  bench export -o json > results.json
  bench export -o csv --file results.csv
  bench export --model meta-llama/Llama-3.1-8B -o csv`,
	RunE: runExport,
}

var (
	exportModel string
	exportFile  string
)

func init() {
	exportCmd.Flags().StringVar(&exportModel, "model", "", "Filter by model HuggingFace ID")
	exportCmd.Flags().StringVar(&exportFile, "file", "", "Output file path (default: stdout)")
	RootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	results, err := loadAllResults(resultsDir)
	if err != nil {
		return err
	}
	rows := flattenRows(results)

	filtered := rows[:0]
	for _, r := range rows {
		if exportModel != "" && r.ModelID != exportModel {
			continue
		}
		filtered = append(filtered, r)
	}

	if len(filtered) == 0 {
		fmt.Fprintln(os.Stderr, "No results to export.")
		return nil
	}

	out := os.Stdout
	if exportFile != "" {
		f, err := os.Create(exportFile)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch getFormat() {
	case format.FormatCSV:
		return format.CSV(out, exportHeaders(), exportRows(filtered))
	default:
		return format.JSONTo(out, filtered)
	}
}

func exportHeaders() []string {
	return []string{
		"benchmark_id", "deployment_id", "model", "instance_type", "vendor",
		"scenario_id", "status",
		"ttft_p50_ms", "ttft_p99_ms", "e2e_latency_p50_ms", "e2e_latency_p99_ms",
		"itl_p50_ms", "throughput_per_request_tps", "throughput_aggregate_tps",
		"requests_per_second", "accelerator_utilization_pct", "accelerator_memory_peak_gib",
	}
}

func exportRows(rows []resultRow) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		s := r.Summary
		out[i] = []string{
			r.BenchmarkID,
			r.DeploymentID,
			r.ModelID,
			r.InstanceType,
			r.Vendor,
			r.ScenarioID,
			r.Status,
			format.PtrF64(s.TTFTP50Ms, 2),
			format.PtrF64(s.TTFTP99Ms, 2),
			format.PtrF64(s.E2ELatencyP50Ms, 2),
			format.PtrF64(s.E2ELatencyP99Ms, 2),
			format.PtrF64(s.ITLP50Ms, 2),
			format.PtrF64(s.ThroughputPerRequestTPS, 2),
			format.PtrF64(s.ThroughputAggregateTPS, 2),
			format.PtrF64(s.RequestsPerSecond, 2),
			format.PtrF64(s.AcceleratorUtilizationPct, 2),
			format.PtrF64(s.AcceleratorMemoryPeakGiB, 2),
		}
	}
	return out
}
