package recommend

import (
	"fmt"
	"math"
)

// ModelArchitecture holds the handful of architecture fields the offline
// estimate needs to reason about memory footprint.
type ModelArchitecture struct {
	ParameterCount        int64
	HiddenSize            int
	NumAttentionHeads     int
	NumKeyValueHeads      int
	NumHiddenLayers       int
	MaxPositionEmbeddings int
	NativeDtype           string
}

// InstanceSpec is the subset of an InstanceConfig the estimate needs.
type InstanceSpec struct {
	Name                 string
	AcceleratorName      string
	AcceleratorCount     int
	AcceleratorMemoryGiB int
}

// FeasibilityEstimate is a purely local, offline approximation of whether a
// model fits on an instance and at what quantization/TP degree — used only
// to annotate *why* the live recommender deemed an instance infeasible. It
// never participates in admission or planning decisions; those always go
// through the live recommender (see Client.Recommend).
type FeasibilityEstimate struct {
	Feasible             bool
	Reason               string
	TensorParallelDegree int
	Quantization         string // "" means native precision
	MaxModelLen          int
}

const (
	overheadFraction = 0.10 // reserved for CUDA context, activations, etc.
	gibBytes         = 1024 * 1024 * 1024
)

func bytesPerParam(quant string) float64 {
	switch quant {
	case "fp32":
		return 4
	case "", "fp16", "bfloat16":
		return 2
	case "fp8", "int8":
		return 1
	case "int4":
		return 0.5
	default:
		return 2
	}
}

func supportsFP8(acceleratorName string) bool {
	switch acceleratorName {
	case "H100", "H200", "L40S":
		return true
	default:
		return false
	}
}

func modelMemoryBytes(params int64, quant string) float64 {
	return float64(params) * bytesPerParam(quant)
}

func kvCachePerTokenBytes(a ModelArchitecture) float64 {
	if a.NumAttentionHeads == 0 {
		return 0
	}
	headDim := float64(a.HiddenSize) / float64(a.NumAttentionHeads)
	return 2 * float64(a.NumHiddenLayers) * float64(a.NumKeyValueHeads) * headDim * 2
}

func nativeDtype(a ModelArchitecture) string {
	if a.NativeDtype != "" {
		return a.NativeDtype
	}
	return "bfloat16"
}

// validTPDegree finds the smallest TP ≥ minTP that evenly divides both
// attention-head counts and is ≤ maxGPUs, falling back to maxGPUs.
func validTPDegree(minTP, numHeads, numKVHeads, maxGPUs int) int {
	for tp := minTP; tp <= maxGPUs; tp++ {
		if numHeads%tp == 0 && numKVHeads%tp == 0 {
			return tp
		}
	}
	return maxGPUs
}

// EstimateFeasibility computes a rough local estimate of whether arch fits
// on inst, trying native precision first and falling back through
// fp8/int8/int4 quantization. This mirrors the memory-math a live TGI
// recommender performs, but is never a substitute for it — see the
// package doc.
func EstimateFeasibility(arch ModelArchitecture, inst InstanceSpec) FeasibilityEstimate {
	if inst.AcceleratorCount == 0 {
		return FeasibilityEstimate{Feasible: false, Reason: "instance reports zero accelerators"}
	}
	dtype := nativeDtype(arch)
	perDeviceBytes := float64(inst.AcceleratorMemoryGiB) / float64(inst.AcceleratorCount) * gibBytes
	usablePerDevice := perDeviceBytes * (1 - overheadFraction)
	totalUsable := usablePerDevice * float64(inst.AcceleratorCount)

	modelMemNative := modelMemoryBytes(arch.ParameterCount, dtype)
	if modelMemNative <= totalUsable {
		minGPUs := int(math.Ceil(modelMemNative / usablePerDevice))
		if minGPUs < 1 {
			minGPUs = 1
		}
		tp := validTPDegree(minGPUs, arch.NumAttentionHeads, arch.NumKeyValueHeads, inst.AcceleratorCount)
		return FeasibilityEstimate{
			Feasible:             true,
			TensorParallelDegree: tp,
			MaxModelLen:          estimateMaxModelLen(arch, modelMemNative, totalUsable),
		}
	}

	for _, quant := range []string{"fp8", "int8", "int4"} {
		if quant == "fp8" && !supportsFP8(inst.AcceleratorName) {
			continue
		}
		qMem := modelMemoryBytes(arch.ParameterCount, quant)
		if qMem > totalUsable {
			continue
		}
		minGPUs := int(math.Ceil(qMem / usablePerDevice))
		if minGPUs < 1 {
			minGPUs = 1
		}
		tp := validTPDegree(minGPUs, arch.NumAttentionHeads, arch.NumKeyValueHeads, inst.AcceleratorCount)
		return FeasibilityEstimate{
			Feasible:             true,
			TensorParallelDegree: tp,
			Quantization:         quant,
			MaxModelLen:          estimateMaxModelLen(arch, qMem, totalUsable),
		}
	}

	return FeasibilityEstimate{
		Feasible: false,
		Reason: fmt.Sprintf("model requires %.1f GiB in %s; even int4 (%.1f GiB) exceeds %.0f GiB available on %s",
			modelMemNative/gibBytes, dtype, modelMemoryBytes(arch.ParameterCount, "int4")/gibBytes, totalUsable/gibBytes, inst.Name),
	}
}

func estimateMaxModelLen(arch ModelArchitecture, modelMem, totalUsable float64) int {
	kvPerToken := kvCachePerTokenBytes(arch)
	if kvPerToken == 0 {
		return arch.MaxPositionEmbeddings
	}
	remaining := totalUsable - modelMem
	if remaining < 0 {
		remaining = 0
	}
	maxTokens := int(remaining / kvPerToken)
	if maxTokens > arch.MaxPositionEmbeddings && arch.MaxPositionEmbeddings > 0 {
		maxTokens = arch.MaxPositionEmbeddings
	}
	return maxTokens
}
