package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loadbench/loadbench/cmd/bench/format"
	"github.com/loadbench/loadbench/internal/metrics"
	"github.com/loadbench/loadbench/internal/result"
)

var statusCmd = &cobra.Command{
	Use:   "status <benchmark-id>",
	Short: "Show one saved benchmark run's deployments, scenarios, and metrics",
	Long: `Load benchmark_<id> from --results-dir and print its deployment
statuses, per-scenario outcomes, and parsed metrics summaries.

Examples:
  bench status 1f3c9e12-abcd-4ef0-9012-345678901234
  bench status 1f3c9e12-abcd-4ef0-9012-345678901234 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := args[0]
	dir := filepath.Join(resultsDir, "benchmark_"+id)
	br, err := result.Load(dir)
	if err != nil {
		return fmt.Errorf("load benchmark %s: %w", id, err)
	}

	if getFormat() == format.FormatJSON {
		return format.JSON(br)
	}

	fmt.Printf("Benchmark:  %s\n", br.BenchmarkID)
	fmt.Printf("Groups:     %d\n\n", len(br.Groups))

	for _, g := range br.Groups {
		fmt.Printf("Deployment %s — %s on %s (%s)\n", g.DeploymentID, g.DeploymentDetails.Runtime.ModelID,
			g.DeploymentDetails.Instance.InstanceType, g.DeploymentStatus.Status)
		if g.DeploymentStatus.Error != nil {
			fmt.Printf("  error: %s\n", *g.DeploymentStatus.Error)
		}
		if g.DeploymentStatus.OOM {
			fmt.Println("  OOM: true")
		}
		if g.DeploymentStatus.PeakGPUUtilizationPct != nil {
			fmt.Printf("  peak GPU utilization: %.1f%%\n", *g.DeploymentStatus.PeakGPUUtilizationPct)
		}
		if g.DeploymentStatus.PeakGPUMemoryGiB != nil {
			fmt.Printf("  peak GPU memory: %.1f GiB\n", *g.DeploymentStatus.PeakGPUMemoryGiB)
		}

		rows := make([][]string, 0, len(g.ScenarioResults))
		for _, sr := range g.ScenarioResults {
			summary, err := metrics.ParseSummary(sr.Metrics)
			if err != nil || summary == nil {
				summary = &metrics.Summary{}
			}
			errMsg := "-"
			if sr.Status.Error != nil {
				errMsg = *sr.Status.Error
			}
			rows = append(rows, []string{
				sr.ScenarioID,
				sr.Status.Status,
				format.PtrF64(summary.TTFTP50Ms, 1),
				format.PtrF64(summary.E2ELatencyP50Ms, 1),
				format.PtrF64(summary.ThroughputAggregateTPS, 0),
				format.PtrF64(summary.RequestsPerSecond, 2),
				errMsg,
			})
		}
		format.Table([]string{"Scenario", "Status", "TTFT p50", "E2E p50", "Tput(agg)", "RPS", "Error"}, rows)
		fmt.Println()
	}
	return nil
}
