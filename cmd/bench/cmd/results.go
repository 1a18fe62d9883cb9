package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/loadbench/loadbench/internal/metrics"
	"github.com/loadbench/loadbench/internal/result"
)

// loadAllResults loads every benchmark_<id> tree under dir, skipping (and
// warning about, on stderr) any that fail to load rather than aborting the
// whole scan.
func loadAllResults(dir string) ([]*result.BenchmarkResult, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "benchmark_*"))
	if err != nil {
		return nil, fmt.Errorf("scan results directory %s: %w", dir, err)
	}
	sort.Strings(matches)

	var out []*result.BenchmarkResult
	for _, m := range matches {
		br, err := result.Load(m)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", m, err)
			continue
		}
		out = append(out, br)
	}
	return out, nil
}

// resultRow is one scenario's worth of display data, flattened out of a
// BenchmarkResult/ScenarioGroupResult/ScenarioResult triple.
type resultRow struct {
	BenchmarkID  string
	DeploymentID string
	ModelID      string
	InstanceType string
	Vendor       string
	ScenarioID   string
	Status       string
	Summary      metrics.Summary
}

// flattenRows walks every benchmark's groups and scenarios into resultRows.
// A scenario whose metrics fail to parse still contributes a row with a
// zero-value Summary rather than being dropped.
func flattenRows(results []*result.BenchmarkResult) []resultRow {
	var rows []resultRow
	for _, br := range results {
		for _, g := range br.Groups {
			for _, sr := range g.ScenarioResults {
				summary, err := metrics.ParseSummary(sr.Metrics)
				if err != nil || summary == nil {
					summary = &metrics.Summary{}
				}
				rows = append(rows, resultRow{
					BenchmarkID:  br.BenchmarkID,
					DeploymentID: g.DeploymentID,
					ModelID:      g.DeploymentDetails.Runtime.ModelID,
					InstanceType: g.DeploymentDetails.Instance.InstanceType,
					Vendor:       g.DeploymentDetails.Instance.Vendor,
					ScenarioID:   sr.ScenarioID,
					Status:       sr.Status.Status,
					Summary:      *summary,
				})
			}
		}
	}
	return rows
}
