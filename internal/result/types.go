// Package result defines the typed benchmark result tree and its
// persistence to a directory layout on the local filesystem.
package result

import (
	"encoding/json"

	"github.com/loadbench/loadbench/internal/config"
)

// ScenarioStatus is the outcome of one scenario run.
type ScenarioStatus struct {
	Status string  `json:"status"` // "success" or "failed"
	Error  *string `json:"error"`
}

// ScenarioResult is the outcome of running one load-generator scenario
// against a deployment.
type ScenarioResult struct {
	ScenarioID        string            `json:"scenario_id"`
	DeploymentID      string            `json:"deployment_id"`
	ExecutorType      string            `json:"executor_type"`
	ExecutorVariables map[string]any    `json:"executor_variables"`
	RenderedScript    string            `json:"rendered_script"`
	Metrics           json.RawMessage   `json:"metrics"`
	Status            ScenarioStatus    `json:"status"`
}

// DeploymentStatus summarizes how a deployment's benchmark run went,
// including the optional GPU-metrics enrichment fields (§4.10), populated
// only when that scraper is enabled.
type DeploymentStatus struct {
	Status                 string   `json:"status"` // "success" or "failed"
	Error                  *string  `json:"error"`
	OOM                    bool     `json:"oom"`
	PeakGPUUtilizationPct  *float64 `json:"peak_gpu_utilization_pct,omitempty"`
	PeakGPUMemoryGiB       *float64 `json:"peak_gpu_memory_gib,omitempty"`
}

// DeploymentDetails is the runtime + instance config snapshot and raw
// endpoint descriptor embedded in a ScenarioGroupResult.
type DeploymentDetails struct {
	Runtime         config.RuntimeConfig  `json:"runtime"`
	Instance        config.InstanceConfig `json:"instance"`
	EndpointDetails json.RawMessage       `json:"endpoint_details"`
}

// ScenarioGroupResult is the outcome of running every scenario pinned to
// one deployment.
type ScenarioGroupResult struct {
	DeploymentID      string             `json:"deployment_id"`
	ScenarioResults   []ScenarioResult   `json:"scenario_results"`
	DeploymentDetails DeploymentDetails  `json:"deployment_details"`
	DeploymentStatus  DeploymentStatus   `json:"deployment_status"`
}

// BenchmarkResult is the top-level tree persisted for one benchmark run.
type BenchmarkResult struct {
	BenchmarkID string                `json:"benchmark_id"`
	Groups      []ScenarioGroupResult `json:"scenario_group_results"`
	OutputDir   string                `json:"-"`
}
