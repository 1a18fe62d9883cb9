package catalog

import (
	"context"
	"log"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/loadbench/loadbench/internal/config"
)

// EC2Checker cross-references AWS catalog rows against ec2.DescribeInstanceTypes
// to catch a catalog document that has drifted from what EC2 actually offers.
// It never mutates or rejects a row: the external catalog API remains
// authoritative per spec §4.1. A mismatch is logged as a diagnostic only.
type EC2Checker struct {
	client *ec2.Client
}

// NewEC2Checker wraps an EC2 client. Pass the result of
// ec2.NewFromConfig(awsCfg).
func NewEC2Checker(client *ec2.Client) *EC2Checker {
	return &EC2Checker{client: client}
}

// Check cross-references every instance with Vendor == "aws" against EC2's
// own DescribeInstanceTypes and logs a warning for any accelerator
// count/memory mismatch. Best-effort: an EC2 API error for one instance type
// does not abort the check for the rest.
func (c *EC2Checker) Check(ctx context.Context, instances []config.InstanceConfig) {
	if c.client == nil {
		return
	}
	for _, inst := range instances {
		if inst.Vendor != "aws" {
			continue
		}
		out, err := c.client.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{
			InstanceTypes: []types.InstanceType{types.InstanceType(inst.InstanceType)},
		})
		if err != nil {
			log.Printf("ec2enrich: describe-instance-types %s: %v", inst.InstanceType, err)
			continue
		}
		if len(out.InstanceTypes) == 0 {
			log.Printf("ec2enrich: %s not found in EC2 instance type catalog", inst.InstanceType)
			continue
		}
		it := out.InstanceTypes[0]
		if it.GpuInfo == nil {
			continue
		}
		var gpuCount int32
		for _, g := range it.GpuInfo.Gpus {
			if g.Count != nil {
				gpuCount += *g.Count
			}
		}
		if int(gpuCount) != inst.NumGPUs {
			log.Printf("ec2enrich: %s: catalog reports %d GPUs, EC2 reports %d", inst.InstanceType, inst.NumGPUs, gpuCount)
		}
		if it.GpuInfo.TotalGpuMemoryInMiB != nil {
			ec2MemGB := int(*it.GpuInfo.TotalGpuMemoryInMiB) / 1024
			if ec2MemGB != inst.GPUMemoryInGB*inst.NumGPUs {
				log.Printf("ec2enrich: %s: catalog reports %d GiB total GPU memory, EC2 reports %d GiB", inst.InstanceType, inst.GPUMemoryInGB*inst.NumGPUs, ec2MemGB)
			}
		}
	}
}
