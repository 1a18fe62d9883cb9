package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// QuotaEntry is one (vendor, instance_type) capacity row.
type QuotaEntry struct {
	Vendor           string `json:"vendor"`
	InstanceType     string `json:"instance_type"`
	MaxAccelerators  int    `json:"max_accelerators"`
	UsedAccelerators int    `json:"used_accelerators"`
}

// Quota is the full capacity document for a namespace.
type Quota struct {
	Entries []QuotaEntry `json:"entries"`
}

// Available returns max-used accelerators for (vendor, instanceType).
// Missing entries report zero capacity — not admittable.
func (q Quota) Available(vendor, instanceType string) int {
	for _, e := range q.Entries {
		if e.Vendor == vendor && e.InstanceType == instanceType {
			avail := e.MaxAccelerators - e.UsedAccelerators
			if avail < 0 {
				return 0
			}
			return avail
		}
	}
	return 0
}

// QuotaFetcher retrieves the current quota document for a namespace.
type QuotaFetcher interface {
	FetchQuota(ctx context.Context, namespace string) (*Quota, error)
}

// HTTPQuotaFetcher fetches quota from the control plane's
// /provider/quotas/<namespace> endpoint.
type HTTPQuotaFetcher struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPQuotaFetcher returns an HTTPQuotaFetcher against baseURL.
func NewHTTPQuotaFetcher(baseURL string) *HTTPQuotaFetcher {
	return &HTTPQuotaFetcher{httpClient: &http.Client{Timeout: 15 * time.Second}, baseURL: baseURL}
}

// quotaDoc is the wire shape returned by /provider/quotas/<namespace>:
// vendors nested over their own per-instance-type quota rows.
type quotaDoc struct {
	Vendors []struct {
		Name   string `json:"name"`
		Quotas []struct {
			InstanceType     string `json:"instanceType"`
			MaxAccelerators  int    `json:"maxAccelerators"`
			UsedAccelerators int    `json:"usedAccelerators"`
		} `json:"quotas"`
	} `json:"vendors"`
}

// FetchQuota fetches the quota document for namespace.
func (f *HTTPQuotaFetcher) FetchQuota(ctx context.Context, namespace string) (*Quota, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/provider/quotas/"+namespace, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch quota for %s: %w", namespace, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch quota for %s: status %d", namespace, resp.StatusCode)
	}
	var doc quotaDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode quota for %s: %w", namespace, err)
	}
	q := &Quota{}
	for _, v := range doc.Vendors {
		for _, qt := range v.Quotas {
			q.Entries = append(q.Entries, QuotaEntry{
				Vendor:           v.Name,
				InstanceType:     qt.InstanceType,
				MaxAccelerators:  qt.MaxAccelerators,
				UsedAccelerators: qt.UsedAccelerators,
			})
		}
	}
	return q, nil
}
