// Command pricingrefresh refreshes AWS on-demand/reserved pricing for a
// fixed instance-type list into the local JSON cache consulted by
// internal/pricing. It has no database and no server loop: one run, one
// refresh, then exit.
package main

import (
	"context"
	"log"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awspricing "github.com/aws/aws-sdk-go-v2/service/pricing"

	"github.com/loadbench/loadbench/internal/pricing"
)

func main() {
	ctx := context.Background()

	cachePath := getEnv("PRICING_CACHE_PATH", "pricing-cache.json")
	instanceTypes := strings.Split(getEnv("PRICING_INSTANCE_TYPES", ""), ",")
	for i := range instanceTypes {
		instanceTypes[i] = strings.TrimSpace(instanceTypes[i])
	}
	if len(instanceTypes) == 0 || instanceTypes[0] == "" {
		log.Fatal("PRICING_INSTANCE_TYPES is required (comma-separated)")
	}

	regions := strings.Split(getEnv("PRICING_REGIONS", "us-east-2"), ",")
	for i := range regions {
		regions[i] = strings.TrimSpace(regions[i])
	}

	cache, err := pricing.LoadCache(cachePath)
	if err != nil {
		log.Fatalf("load pricing cache %s: %v", cachePath, err)
	}

	// AWS Pricing API is only available in us-east-1.
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion("us-east-1"))
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}
	client := awspricing.NewFromConfig(cfg)

	for _, region := range regions {
		entries, failures := pricing.Refresh(ctx, client, instanceTypes, region)
		for it, err := range failures {
			log.Printf("WARN: %s in %s: %v", it, region, err)
		}
		cache.Entries = mergeEntries(cache.Entries, entries)
		log.Printf("Refreshed pricing for %d/%d instance types in %s", len(entries), len(instanceTypes), region)
	}

	if err := pricing.SaveCache(cachePath, cache); err != nil {
		log.Fatalf("save pricing cache %s: %v", cachePath, err)
	}
	log.Printf("Pricing cache %s updated for regions: %s", cachePath, strings.Join(regions, ", "))
}

// mergeEntries replaces any existing (instance_type, region) entry with its
// freshly-fetched counterpart, keeping everything else untouched.
func mergeEntries(existing, fresh []pricing.Entry) []pricing.Entry {
	freshByKey := make(map[string]pricing.Entry, len(fresh))
	for _, e := range fresh {
		freshByKey[e.InstanceType+"|"+e.Region] = e
	}
	merged := make([]pricing.Entry, 0, len(existing)+len(fresh))
	for _, e := range existing {
		if _, refreshed := freshByKey[e.InstanceType+"|"+e.Region]; refreshed {
			continue
		}
		merged = append(merged, e)
	}
	merged = append(merged, fresh...)
	return merged
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
