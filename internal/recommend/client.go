// Package recommend retrieves a runtime configuration for a (model, GPU
// memory, GPU count) query against the recommender API, and offers a local
// offline estimate for diagnostics when the live recommender declares an
// instance infeasible.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/loadbench/loadbench/internal/config"
)

// Client queries the runtime-config recommender endpoint:
// GET <base>/integrations/tgi/v1/config?model_id=…&gpu_memory=<GB>&num_gpus=<n>.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New returns a Client against baseURL (e.g. "https://huggingface.co/api").
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
	}
}

type recommendResponse struct {
	Config struct {
		ModelID                    string `json:"model_id"`
		MaxBatchPrefillTokens      int    `json:"max_batch_prefill_tokens"`
		MaxInputTokens             int    `json:"max_input_tokens"`
		MaxTotalTokens             int    `json:"max_total_tokens"`
		NumShard                   int    `json:"num_shard"`
		Quantize                   string `json:"quantize"`
		EstimatedMemoryInGigabytes *int   `json:"estimated_memory_in_gigabytes"`
	} `json:"config"`
}

type errorDetail struct {
	Detail string `json:"detail"`
}

// Recommend returns the recommended RuntimeConfig for modelID on an
// instance with gpuMemoryGB total GPU memory across numGPUs accelerators.
//
// A 4xx/5xx response means the model is infeasible on that instance: it
// returns (nil, nil) and logs the server's detail message (if any) as a
// diagnostic. Transport errors return (nil, err).
func (c *Client) Recommend(ctx context.Context, modelID string, gpuMemoryGB, numGPUs int) (*config.RuntimeConfig, error) {
	q := url.Values{}
	q.Set("model_id", modelID)
	q.Set("gpu_memory", strconv.Itoa(gpuMemoryGB))
	q.Set("num_gpus", strconv.Itoa(numGPUs))

	reqURL := c.baseURL + "/integrations/tgi/v1/config?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build recommender request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recommender request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var detail errorDetail
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		_ = json.Unmarshal(body, &detail)
		// Infeasible, not a transport failure: nil, nil per §4.2. The detail
		// message (if any) is diagnostic only, so it is logged, not returned.
		log.Printf("recommender: %s infeasible on %d GB x %d GPUs (status %d): %s", modelID, gpuMemoryGB, numGPUs, resp.StatusCode, detail.Detail)
		return nil, nil
	}

	var out recommendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode recommender response: %w", err)
	}

	rc := config.RuntimeConfig{
		ModelID:                    out.Config.ModelID,
		MaxBatchPrefillTokens:      out.Config.MaxBatchPrefillTokens,
		MaxInputTokens:             out.Config.MaxInputTokens,
		MaxTotalTokens:             out.Config.MaxTotalTokens,
		NumShard:                   out.Config.NumShard,
		Quantize:                   out.Config.Quantize,
		EstimatedMemoryInGigabytes: out.Config.EstimatedMemoryInGigabytes,
	}
	return &rc, nil
}
