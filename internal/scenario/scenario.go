// Package scenario runs one or many load-generator scenarios against a
// deployment: rendering a script (internal/script), supervising the
// load-generator subprocess, and parsing its output into a typed result.
package scenario

import (
	"context"
	"fmt"

	"github.com/loadbench/loadbench/internal/config"
	"github.com/loadbench/loadbench/internal/result"
)

// Scenario is an immutable description of one load-generator run.
type Scenario struct {
	ScenarioID        string
	Deployment        *config.Deployment
	ExecutorName      string // currently only "constant_arrival_rate"
	ExecutorVariables map[string]any
	DatasetFilePath   string
}

// Group is (deployment, list of scenarios). Every scenario's Deployment
// must equal the group's Deployment — NewGroup rejects construction misuse
// with an error rather than silently mixing deployments.
type Group struct {
	Deployment *config.Deployment
	Scenarios  []Scenario
}

// NewGroup validates that every scenario targets deployment and returns a
// Group, or an error if any scenario's Deployment differs.
func NewGroup(deployment *config.Deployment, scenarios []Scenario) (*Group, error) {
	for _, s := range scenarios {
		if s.Deployment != deployment {
			return nil, fmt.Errorf("scenario %s targets deployment %s, group is %s", s.ScenarioID, s.Deployment.DeploymentID, deployment.DeploymentID)
		}
	}
	return &Group{Deployment: deployment, Scenarios: scenarios}, nil
}

// Runner executes a single scenario. It is the seam between a Group's
// serial iteration and the chosen execution backend (local subprocess or
// the optional execjob Kubernetes backend).
type Runner interface {
	Run(ctx context.Context, s Scenario) (*result.ScenarioResult, error)
}
