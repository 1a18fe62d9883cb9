// Package pricing refreshes AWS on-demand/reserved pricing for catalog
// instance types into a local JSON cache file. Only cmd/pricingrefresh
// reads and writes that cache: InstanceConfig.PricePerHour comes from the
// compute catalog document alone (see internal/catalog), and a row the
// catalog leaves without a price is not filled in from the cache.
//
// This is an ambient enrichment, not a core scheduling component.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

// Entry is one cached price point for an instance type in a region.
type Entry struct {
	InstanceType         string   `json:"instance_type"`
	Region               string   `json:"region"`
	OnDemandHourlyUSD    float64  `json:"on_demand_hourly_usd"`
	Reserved1YrHourlyUSD *float64 `json:"reserved_1yr_hourly_usd,omitempty"`
	Reserved3YrHourlyUSD *float64 `json:"reserved_3yr_hourly_usd,omitempty"`
	EffectiveDate        string   `json:"effective_date"`
}

// Cache is the on-disk JSON document written by Refresh and read by callers
// that want to fill in a missing price_per_hour.
type Cache struct {
	Entries []Entry `json:"entries"`
}

// Lookup returns the cached hourly on-demand price for instanceType/region,
// or false if no entry exists.
func (c Cache) Lookup(instanceType, region string) (float64, bool) {
	for _, e := range c.Entries {
		if e.InstanceType == instanceType && e.Region == region {
			return e.OnDemandHourlyUSD, true
		}
	}
	return 0, false
}

// LoadCache reads a Cache from path. A missing file returns an empty Cache,
// not an error, since pricing enrichment is always optional.
func LoadCache(path string) (Cache, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Cache{}, nil
	}
	if err != nil {
		return Cache{}, err
	}
	var c Cache
	if err := json.Unmarshal(data, &c); err != nil {
		return Cache{}, fmt.Errorf("parse pricing cache %s: %w", path, err)
	}
	return c, nil
}

// SaveCache writes c to path as indented JSON.
func SaveCache(path string, c Cache) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Refresh fetches current on-demand/reserved pricing for instanceTypes in
// region and returns the resulting entries. Instance types the Pricing API
// has no data for are skipped with their error returned alongside (the
// caller logs and continues; a partial refresh is still useful).
func Refresh(ctx context.Context, client *pricing.Client, instanceTypes []string, region string) ([]Entry, map[string]error) {
	today := time.Now().Format("2006-01-02")
	var entries []Entry
	failures := map[string]error{}

	for _, it := range instanceTypes {
		onDemand, res1yr, res3yr, err := fetchPricing(ctx, client, it, region)
		if err != nil {
			failures[it] = err
			continue
		}
		entries = append(entries, Entry{
			InstanceType:         it,
			Region:               region,
			OnDemandHourlyUSD:    onDemand,
			Reserved1YrHourlyUSD: res1yr,
			Reserved3YrHourlyUSD: res3yr,
			EffectiveDate:        today,
		})
	}
	return entries, failures
}

// fetchPricing calls the AWS Pricing API for a single instance type and
// region, returning on-demand hourly, 1yr RI (All Upfront), and 3yr RI (All
// Upfront) rates. Grounded on the teacher's cmd/pricingrefresh fetchPricing.
func fetchPricing(ctx context.Context, client *pricing.Client, instanceType, region string) (onDemand float64, res1yr, res3yr *float64, err error) {
	input := &pricing.GetProductsInput{
		ServiceCode: strPtr("AmazonEC2"),
		Filters: []pricingtypes.Filter{
			{Type: pricingtypes.FilterTypeTermMatch, Field: strPtr("instanceType"), Value: strPtr(instanceType)},
			{Type: pricingtypes.FilterTypeTermMatch, Field: strPtr("operatingSystem"), Value: strPtr("Linux")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: strPtr("tenancy"), Value: strPtr("Shared")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: strPtr("preInstalledSw"), Value: strPtr("NA")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: strPtr("capacitystatus"), Value: strPtr("Used")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: strPtr("regionCode"), Value: strPtr(region)},
		},
		MaxResults: int32Ptr(10),
	}

	resp, err := client.GetProducts(ctx, input)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("GetProducts: %w", err)
	}
	if len(resp.PriceList) == 0 {
		return 0, nil, nil, fmt.Errorf("no pricing found for %s in %s", instanceType, region)
	}

	var product priceDoc
	if err := json.Unmarshal([]byte(resp.PriceList[0]), &product); err != nil {
		return 0, nil, nil, fmt.Errorf("parse price list: %w", err)
	}

	onDemand, err = extractOnDemand(product.Terms.OnDemand)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("on-demand: %w", err)
	}

	res1yr = extractReserved(product.Terms.Reserved, "1yr")
	res3yr = extractReserved(product.Terms.Reserved, "3yr")

	return onDemand, res1yr, res3yr, nil
}

type priceDoc struct {
	Terms struct {
		OnDemand map[string]termEntry `json:"OnDemand"`
		Reserved map[string]termEntry `json:"Reserved"`
	} `json:"terms"`
}

type termEntry struct {
	PriceDimensions map[string]priceDimension `json:"priceDimensions"`
	TermAttributes  map[string]string         `json:"termAttributes"`
}

type priceDimension struct {
	Unit         string            `json:"unit"`
	PricePerUnit map[string]string `json:"pricePerUnit"`
}

func extractOnDemand(terms map[string]termEntry) (float64, error) {
	for _, term := range terms {
		for _, pd := range term.PriceDimensions {
			if pd.Unit == "Hrs" {
				usd, ok := pd.PricePerUnit["USD"]
				if !ok {
					continue
				}
				return strconv.ParseFloat(usd, 64)
			}
		}
	}
	return 0, fmt.Errorf("no hourly on-demand price found")
}

// extractReserved finds the All Upfront, Standard reserved price for the
// given lease length ("1yr" or "3yr") and returns the effective hourly rate.
func extractReserved(terms map[string]termEntry, lease string) *float64 {
	for _, term := range terms {
		attrs := term.TermAttributes
		if attrs["LeaseContractLength"] != lease ||
			attrs["PurchaseOption"] != "All Upfront" ||
			attrs["OfferingClass"] != "standard" {
			continue
		}
		for _, pd := range term.PriceDimensions {
			if pd.Unit == "Quantity" {
				usd, ok := pd.PricePerUnit["USD"]
				if !ok {
					continue
				}
				upfront, err := strconv.ParseFloat(usd, 64)
				if err != nil || upfront <= 0 {
					continue
				}
				var hours float64
				switch lease {
				case "1yr":
					hours = 8760
				case "3yr":
					hours = 26280
				}
				hourly := upfront / hours
				return &hourly
			}
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }
func int32Ptr(i int32) *int32 { return &i }
