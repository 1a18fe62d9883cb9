// Package metrics decodes the opaque per-scenario metrics blob
// (result.ScenarioResult.Metrics) into a typed summary for display. The
// load generator's own stdout JSON is the system of record; this package
// only knows the flat field names a scenario script's summary is expected
// to use, not how any of them were computed.
package metrics

import (
	"encoding/json"
	"fmt"
)

// Summary is the flat set of aggregate fields a scenario's load-generator
// summary is expected to carry. Every field is optional: a scenario script
// that omits a metric simply leaves it nil, and ParseSummary never fails
// because of a missing field.
type Summary struct {
	TTFTP50Ms                 *float64 `json:"ttft_p50_ms"`
	TTFTP90Ms                 *float64 `json:"ttft_p90_ms"`
	TTFTP95Ms                 *float64 `json:"ttft_p95_ms"`
	TTFTP99Ms                 *float64 `json:"ttft_p99_ms"`
	E2ELatencyP50Ms           *float64 `json:"e2e_latency_p50_ms"`
	E2ELatencyP90Ms           *float64 `json:"e2e_latency_p90_ms"`
	E2ELatencyP95Ms           *float64 `json:"e2e_latency_p95_ms"`
	E2ELatencyP99Ms           *float64 `json:"e2e_latency_p99_ms"`
	ITLP50Ms                  *float64 `json:"itl_p50_ms"`
	ITLP99Ms                  *float64 `json:"itl_p99_ms"`
	ThroughputPerRequestTPS   *float64 `json:"throughput_per_request_tps"`
	ThroughputAggregateTPS    *float64 `json:"throughput_aggregate_tps"`
	RequestsPerSecond         *float64 `json:"requests_per_second"`
	AcceleratorUtilizationPct *float64 `json:"accelerator_utilization_pct"`
	AcceleratorMemoryPeakGiB  *float64 `json:"accelerator_memory_peak_gib"`
	SuccessfulRequests        *int     `json:"successful_requests"`
	FailedRequests            *int     `json:"failed_requests"`
	TotalDurationSeconds      *float64 `json:"total_duration_seconds"`
}

// ParseSummary decodes raw (a ScenarioResult.Metrics blob) into a Summary.
// An empty or null raw is not an error: it returns a zero Summary, since a
// failed scenario has no metrics at all.
func ParseSummary(raw json.RawMessage) (*Summary, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &Summary{}, nil
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scenario metrics: %w", err)
	}
	return &s, nil
}
