package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loadbench/loadbench/cmd/bench/format"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare saved benchmark results for one model across instance types",
	Long: `Scan --results-dir for a model's saved results and print one row per
(instance type, scenario), optionally narrowed to a specific set of
instance types.

Examples:
  bench compare --model meta-llama/Llama-3.1-8B
  bench compare --model meta-llama/Llama-3.1-8B --instance-types g5.xlarge,p4d.24xlarge`,
	RunE: runCompare,
}

var (
	compareModel         string
	compareInstanceTypes string
)

func init() {
	compareCmd.Flags().StringVar(&compareModel, "model", "", "Model HuggingFace ID (required)")
	compareCmd.Flags().StringVar(&compareInstanceTypes, "instance-types", "", "Comma-separated instance types to compare")
	_ = compareCmd.MarkFlagRequired("model")
	RootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	results, err := loadAllResults(resultsDir)
	if err != nil {
		return err
	}
	rows := flattenRows(results)

	var wanted map[string]bool
	if compareInstanceTypes != "" {
		wanted = make(map[string]bool)
		for _, it := range strings.Split(compareInstanceTypes, ",") {
			wanted[strings.TrimSpace(it)] = true
		}
	}

	filtered := rows[:0]
	for _, r := range rows {
		if r.ModelID != compareModel {
			continue
		}
		if wanted != nil && !wanted[r.InstanceType] {
			continue
		}
		filtered = append(filtered, r)
	}

	if len(filtered) == 0 {
		fmt.Fprintln(os.Stderr, "No matching results found for comparison.")
		return nil
	}

	switch getFormat() {
	case format.FormatJSON:
		return format.JSON(filtered)
	case format.FormatCSV:
		return format.CSV(os.Stdout, compareHeaders(), compareRows(filtered))
	default:
		format.Table(compareHeaders(), compareRows(filtered))
		fmt.Fprintf(os.Stderr, "\n%d configuration(s) compared\n", len(filtered))
		return nil
	}
}

func compareHeaders() []string {
	return []string{
		"Instance", "Vendor", "Scenario", "Status",
		"TTFT p50", "E2E p50", "Tput(agg)", "Tput(req)", "RPS",
	}
}

func compareRows(rows []resultRow) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{
			r.InstanceType,
			r.Vendor,
			r.ScenarioID,
			r.Status,
			format.PtrF64(r.Summary.TTFTP50Ms, 1),
			format.PtrF64(r.Summary.E2ELatencyP50Ms, 1),
			format.PtrF64(r.Summary.ThroughputAggregateTPS, 0),
			format.PtrF64(r.Summary.ThroughputPerRequestTPS, 1),
			format.PtrF64(r.Summary.RequestsPerSecond, 2),
		}
	}
	return out
}
