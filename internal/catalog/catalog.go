// Package catalog fetches and normalizes the cloud compute-option catalog:
// a nested vendor → region → compute document, flattened into one
// config.InstanceConfig row per available GPU compute option.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/loadbench/loadbench/internal/config"
	"github.com/loadbench/loadbench/internal/errs"
)

// providerDoc mirrors the catalog endpoint's response shape:
// GET <catalog-base>/v2/provider.
type providerDoc struct {
	Vendors []vendorDoc `json:"vendors"`
}

type vendorDoc struct {
	Name    string      `json:"name"`
	Status  string      `json:"status"`
	Regions []regionDoc `json:"regions"`
}

type regionDoc struct {
	Name     string      `json:"name"`
	Label    string      `json:"label"`
	Status   string      `json:"status"`
	Computes []computeDoc `json:"computes"`
}

type computeDoc struct {
	ID             string  `json:"id"`
	Accelerator    string  `json:"accelerator"`
	Status         string  `json:"status"`
	NumAccelerators json.Number `json:"numAccelerators"`
	MemoryGb       json.Number `json:"memoryGb"`
	GPUMemoryGb    json.Number `json:"gpuMemoryGb"`
	InstanceType   string  `json:"instanceType"`
	InstanceSize   string  `json:"instanceSize"`
	Architecture   string  `json:"architecture"`
	PricePerHour   float64 `json:"pricePerHour"`
	NumCpus        json.Number `json:"numCpus"`
}

const available = "available"

// Client fetches compute catalog documents over HTTPS.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New returns a Client against baseURL (e.g. "https://api.endpoints.example.cloud/v2").
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    baseURL,
	}
}

// ListGPUOptions fetches the provider document, flattens vendor/region
// metadata onto each compute row, coerces integer fields, and filters to
// rows where every status in {vendor, region, compute} is "available" and
// accelerator == "gpu". Transport and decode failures surface as a
// *errs.Error of kind CatalogFetchError.
func (c *Client) ListGPUOptions(ctx context.Context) ([]config.InstanceConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/provider", nil)
	if err != nil {
		return nil, errs.Wrap(errs.CatalogFetchError, "build catalog request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.CatalogFetchError, "catalog request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.CatalogFetchError, fmt.Sprintf("catalog returned HTTP %d", resp.StatusCode))
	}

	var doc providerDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errs.Wrap(errs.CatalogFetchError, "decode catalog document", err)
	}

	return flattenAndFilter(doc), nil
}

// flattenAndFilter implements compute_manager.py's _nested_json_to_df +
// _clean_df + _filter_options in one pass: every compute row is emitted
// alongside its vendor/region metadata, renamed into InstanceConfig's field
// names, with integer fields coerced; only rows whose vendor, region, and
// compute status are all "available" and whose accelerator is "gpu" survive.
func flattenAndFilter(doc providerDoc) []config.InstanceConfig {
	var out []config.InstanceConfig
	for _, v := range doc.Vendors {
		for _, r := range v.Regions {
			for _, comp := range r.Computes {
				if v.Status != available || r.Status != available || comp.Status != available {
					continue
				}
				if comp.Accelerator != "gpu" {
					continue
				}
				out = append(out, config.InstanceConfig{
					ID:            comp.ID,
					Vendor:        v.Name,
					Region:        r.Name,
					Accelerator:   comp.Accelerator,
					InstanceType:  comp.InstanceType,
					InstanceSize:  comp.InstanceSize,
					Architecture:  comp.Architecture,
					NumGPUs:       intOr(comp.NumAccelerators, 0),
					GPUMemoryInGB: intOr(comp.GPUMemoryGb, 0),
					MemoryInGB:    intOr(comp.MemoryGb, 0),
					NumCPUs:       intOr(comp.NumCpus, 0),
					PricePerHour:  comp.PricePerHour,
					VendorStatus:  v.Status,
					RegionStatus:  r.Status,
					ComputeStatus: comp.Status,
				})
			}
		}
	}
	return out
}

func intOr(n json.Number, fallback int) int {
	if n == "" {
		return fallback
	}
	i, err := n.Int64()
	if err != nil {
		log.Printf("catalog: non-integer numeric field %q, using %d", n, fallback)
		return fallback
	}
	return int(i)
}
