// Package config holds the typed records that describe what gets deployed and
// benchmarked: a model's runtime configuration, a catalog instance row, and
// the deployment lifecycle handle that ties the two together under a
// namespace.
package config

import (
	"fmt"
	"strconv"
)

// RuntimeConfig is the per-model runtime specification applied to the
// inference container. Quantize is optional; when empty, no QUANTIZE
// environment variable is emitted.
type RuntimeConfig struct {
	ModelID                    string `json:"model_id"`
	MaxBatchPrefillTokens      int    `json:"max_batch_prefill_tokens"`
	MaxInputTokens             int    `json:"max_input_tokens"`
	MaxTotalTokens             int    `json:"max_total_tokens"`
	NumShard                   int    `json:"num_shard"`
	Quantize                   string `json:"quantize,omitempty"`
	EstimatedMemoryInGigabytes *int   `json:"estimated_memory_in_gigabytes,omitempty"`
}

// EnvVars returns the environment variable bundle applied to the inference
// container. Values are string-serialized integers; MODEL_ID is always the
// literal "/repository" path the container mounts the model under.
//
// Invariant: if Quantize is empty, the returned map has no "QUANTIZE" key.
func (c RuntimeConfig) EnvVars() map[string]string {
	if c.NumShard == 0 {
		c.NumShard = 1
	}
	env := map[string]string{
		"MAX_INPUT_TOKENS":         strconv.Itoa(c.MaxInputTokens),
		"MAX_TOTAL_TOKENS":         strconv.Itoa(c.MaxTotalTokens),
		"MAX_BATCH_PREFILL_TOKENS": strconv.Itoa(c.MaxBatchPrefillTokens),
		"NUM_SHARD":                strconv.Itoa(c.NumShard),
		"MODEL_ID":                 "/repository",
	}
	if c.Quantize != "" {
		env["QUANTIZE"] = c.Quantize
	}
	return env
}

// InstanceConfig is a single normalized catalog row: one purchasable compute
// option from one vendor/region. Required fields are always populated by the
// catalog client (internal/catalog); optional fields may be zero-valued when
// the upstream document omits them.
type InstanceConfig struct {
	ID           string `json:"id"`
	Vendor       string `json:"vendor"`
	Region       string `json:"region"`
	Accelerator  string `json:"accelerator"`
	InstanceType string `json:"instance_type"`
	InstanceSize string `json:"instance_size"`
	Architecture string `json:"architecture,omitempty"`

	NumGPUs       int     `json:"num_gpus,omitempty"`
	GPUMemoryInGB int     `json:"gpu_memory_in_gb,omitempty"`
	MemoryInGB    int     `json:"memory_in_gb,omitempty"`
	NumCPUs       int     `json:"num_cpus,omitempty"`
	PricePerHour  float64 `json:"price_per_hour,omitempty"`

	VendorStatus string `json:"-"`
	RegionStatus string `json:"-"`
	ComputeStatus string `json:"-"`
}

// TotalGPUMemoryGB returns the aggregate GPU memory across all accelerators
// on the instance, the quantity the recommender client queries with.
func (ic InstanceConfig) TotalGPUMemoryGB() int {
	return ic.GPUMemoryInGB * ic.NumGPUs
}

// PermissionError is returned by NewDeploymentConfig when the caller's
// namespace cannot be billed. It is fatal: construction of the
// DeploymentConfig does not proceed.
type PermissionError struct {
	Namespace string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("namespace %q is not a payable principal", e.Namespace)
}

// PayableNamespaceChecker reports whether namespace can be billed for new
// endpoints. Supplied by the caller; a nil checker means "always payable",
// which is convenient for tests and for callers who enforce billing
// elsewhere.
type PayableNamespaceChecker interface {
	IsPayable(namespace string) bool
}

// DeploymentConfig is (RuntimeConfig, InstanceConfig, namespace). Namespace
// must be a billable principal, enforced at construction time only.
type DeploymentConfig struct {
	Runtime   RuntimeConfig
	Instance  InstanceConfig
	Namespace string
}

// NewDeploymentConfig validates namespace against checker (if non-nil) and
// returns a DeploymentConfig, or a *PermissionError if the namespace is not
// payable.
func NewDeploymentConfig(runtime RuntimeConfig, instance InstanceConfig, namespace string, checker PayableNamespaceChecker) (*DeploymentConfig, error) {
	if checker != nil && !checker.IsPayable(namespace) {
		return nil, &PermissionError{Namespace: namespace}
	}
	return &DeploymentConfig{Runtime: runtime, Instance: instance, Namespace: namespace}, nil
}
