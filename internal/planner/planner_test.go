package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/loadbench/loadbench/internal/config"
)

func inst(numGPUs int, instanceType, vendor, region string, price float64) config.InstanceConfig {
	return config.InstanceConfig{
		InstanceType: instanceType,
		Vendor:       vendor,
		Region:       region,
		PricePerHour: price,
		NumGPUs:      numGPUs,
	}
}

func TestPlanDedupesKeepingCheapestPreferredRow(t *testing.T) {
	instances := []config.InstanceConfig{
		inst(1, "g5.xlarge", "gcp", "us-central1", 0.9),
		inst(1, "g5.xlarge", "aws", "eu-west-1", 1.5),
		inst(1, "g5.xlarge", "aws", "us-east-1", 1.2),
	}
	got := Plan(instances, []string{"g5.xlarge"}, "aws", "us")
	if len(got) != 1 {
		t.Fatalf("expected 1 deduped row, got %d: %+v", len(got), got)
	}
	if got[0].Vendor != "aws" || got[0].Region != "us-east-1" {
		t.Errorf("expected the preferred vendor+region row (price 1.2), got %+v", got[0])
	}
}

func TestPlanFiltersToRequestedGPUTypes(t *testing.T) {
	instances := []config.InstanceConfig{
		inst(1, "g5.xlarge", "aws", "us-east-1", 1.2),
		inst(8, "p5.48xlarge", "aws", "us-east-1", 98),
	}
	got := Plan(instances, []string{"g5.xlarge"}, "aws", "us")
	if len(got) != 1 || got[0].InstanceType != "g5.xlarge" {
		t.Errorf("expected only g5.xlarge, got %+v", got)
	}
}

func TestPlanOrdersAscendingByNumGPUs(t *testing.T) {
	instances := []config.InstanceConfig{
		inst(8, "p5.48xlarge", "aws", "us-east-1", 98),
		inst(1, "g5.xlarge", "aws", "us-east-1", 1.2),
		inst(1, "g5.2xlarge", "aws", "us-east-1", 0.5),
	}
	got := Plan(instances, []string{"p5.48xlarge", "g5.xlarge", "g5.2xlarge"}, "aws", "us")
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if got[0].NumGPUs != 1 || got[1].NumGPUs != 1 || got[2].NumGPUs != 8 {
		t.Errorf("expected ascending num_gpus ordering, got %+v", got)
	}
}

type fakeRecommender struct {
	responses map[string]*config.RuntimeConfig
	err       error
}

func (f fakeRecommender) Recommend(_ context.Context, modelID string, _, _ int) (*config.RuntimeConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.responses[modelID], nil
}

func TestViableOmitsInfeasibleInstances(t *testing.T) {
	instances := []config.InstanceConfig{
		inst(1, "g5.xlarge", "aws", "us-east-1", 1.2),
	}
	rec := fakeRecommender{responses: map[string]*config.RuntimeConfig{}}
	plans, err := Viable(context.Background(), rec, "huge/model", instances)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plans) != 0 {
		t.Errorf("expected no viable plans, got %+v", plans)
	}
}

func TestViablePropagatesTransportErrors(t *testing.T) {
	instances := []config.InstanceConfig{inst(1, "g5.xlarge", "aws", "us-east-1", 1.2)}
	rec := fakeRecommender{err: errors.New("boom")}
	_, err := Viable(context.Background(), rec, "model", instances)
	if err == nil {
		t.Fatal("expected transport error to propagate")
	}
}
