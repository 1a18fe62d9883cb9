// Package planner filters, sorts, and deduplicates catalog rows into a
// ranked list of viable (instance × runtime config) pairs.
package planner

import (
	"context"
	"sort"

	"github.com/loadbench/loadbench/internal/config"
)

// Recommender is the subset of internal/recommend.Client that the planner
// needs: a (model, GPU memory, GPU count) query returning a feasible
// RuntimeConfig or nil.
type Recommender interface {
	Recommend(ctx context.Context, modelID string, gpuMemoryGB, numGPUs int) (*config.RuntimeConfig, error)
}

// InstancePlan pairs one catalog row with the runtime config the
// recommender deemed feasible for it.
type InstancePlan struct {
	Instance config.InstanceConfig
	Runtime  config.RuntimeConfig
}

// Plan filters instances to those whose InstanceType is in gpuTypes, sorts
// ascending by (num_gpus, instance_type, vendor_key, region_key,
// price_per_hour) — vendor_key 0 iff vendor == preferredVendor, region_key 0
// iff region has preferredRegionPrefix as a prefix — then dedupes, keeping
// the first row for each (num_gpus, instance_type) pair.
//
// The result is stable under repeated calls with the same catalog and is
// price-minimal within the preferred vendor+region combination.
func Plan(instances []config.InstanceConfig, gpuTypes []string, preferredVendor, preferredRegionPrefix string) []config.InstanceConfig {
	wanted := make(map[string]bool, len(gpuTypes))
	for _, t := range gpuTypes {
		wanted[t] = true
	}

	filtered := make([]config.InstanceConfig, 0, len(instances))
	for _, inst := range instances {
		if wanted[inst.InstanceType] {
			filtered = append(filtered, inst)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if a.NumGPUs != b.NumGPUs {
			return a.NumGPUs < b.NumGPUs
		}
		if a.InstanceType != b.InstanceType {
			return a.InstanceType < b.InstanceType
		}
		ak, bk := vendorKey(a, preferredVendor), vendorKey(b, preferredVendor)
		if ak != bk {
			return ak < bk
		}
		ar, br := regionKey(a, preferredRegionPrefix), regionKey(b, preferredRegionPrefix)
		if ar != br {
			return ar < br
		}
		return a.PricePerHour < b.PricePerHour
	})

	seen := make(map[[2]any]bool, len(filtered))
	out := make([]config.InstanceConfig, 0, len(filtered))
	for _, inst := range filtered {
		key := [2]any{inst.NumGPUs, inst.InstanceType}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, inst)
	}
	return out
}

func vendorKey(inst config.InstanceConfig, preferredVendor string) int {
	if inst.Vendor == preferredVendor {
		return 0
	}
	return 1
}

func regionKey(inst config.InstanceConfig, preferredRegionPrefix string) int {
	if hasPrefix(inst.Region, preferredRegionPrefix) {
		return 0
	}
	return 1
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Viable queries the recommender for each instance with gpu_memory = total
// GPU memory (GB) and num_gpus, emitting a pair iff the recommender returns
// a feasible config. Transport errors from the recommender abort the whole
// call; per-instance infeasibility (a nil, nil result) simply omits that
// instance.
func Viable(ctx context.Context, rec Recommender, modelID string, instances []config.InstanceConfig) ([]InstancePlan, error) {
	var out []InstancePlan
	for _, inst := range instances {
		rc, err := rec.Recommend(ctx, modelID, inst.TotalGPUMemoryGB(), inst.NumGPUs)
		if err != nil {
			return nil, err
		}
		if rc == nil {
			continue
		}
		out = append(out, InstancePlan{Instance: inst, Runtime: *rc})
	}
	return out, nil
}
