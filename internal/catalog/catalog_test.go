package catalog

import (
	"encoding/json"
	"testing"
)

func TestFlattenAndFilterKeepsOnlyAvailableGPURows(t *testing.T) {
	var doc providerDoc
	raw := `{
		"vendors": [
			{
				"name": "aws",
				"status": "available",
				"regions": [
					{
						"name": "us-east-1",
						"label": "US East",
						"status": "available",
						"computes": [
							{"id":"c1","accelerator":"gpu","status":"available","numAccelerators":1,"memoryGb":64,"gpuMemoryGb":24,"instanceType":"g5.xlarge","instanceSize":"xlarge","pricePerHour":1.2,"numCpus":4},
							{"id":"c2","accelerator":"cpu","status":"available","numAccelerators":0,"memoryGb":64,"gpuMemoryGb":0,"instanceType":"m5.xlarge","instanceSize":"xlarge","pricePerHour":0.2,"numCpus":4},
							{"id":"c3","accelerator":"gpu","status":"unavailable","numAccelerators":8,"memoryGb":1024,"gpuMemoryGb":80,"instanceType":"p5.48xlarge","instanceSize":"48xlarge","pricePerHour":98,"numCpus":192}
						]
					}
				]
			},
			{
				"name": "gcp",
				"status": "unavailable",
				"regions": [
					{
						"name": "us-central1",
						"label": "Iowa",
						"status": "available",
						"computes": [
							{"id":"c4","accelerator":"gpu","status":"available","numAccelerators":1,"memoryGb":64,"gpuMemoryGb":24,"instanceType":"a2-highgpu-1g","instanceSize":"1g","pricePerHour":1.1,"numCpus":4}
						]
					}
				]
			}
		]
	}`
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	got := flattenAndFilter(doc)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 row (vendor/region/compute all available, accelerator=gpu), got %d: %+v", len(got), got)
	}
	row := got[0]
	if row.InstanceType != "g5.xlarge" {
		t.Errorf("InstanceType = %q, want g5.xlarge", row.InstanceType)
	}
	if row.NumGPUs != 1 || row.GPUMemoryInGB != 24 || row.NumCPUs != 4 {
		t.Errorf("unexpected cleaned integer fields: %+v", row)
	}
	if row.Vendor != "aws" || row.Region != "us-east-1" {
		t.Errorf("expected vendor/region flattened onto row, got vendor=%q region=%q", row.Vendor, row.Region)
	}
}

func TestIntOrFallsBackOnEmpty(t *testing.T) {
	if got := intOr("", 7); got != 7 {
		t.Errorf("intOr(empty) = %d, want 7", got)
	}
	if got := intOr("42", 7); got != 42 {
		t.Errorf("intOr(42) = %d, want 42", got)
	}
}
