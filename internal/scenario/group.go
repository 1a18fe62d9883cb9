package scenario

import (
	"context"
	"time"

	"github.com/loadbench/loadbench/internal/endpoint"
	"github.com/loadbench/loadbench/internal/result"
)

// InterScenarioDelay is the pause between scenarios within a group, giving
// the endpoint time to drain and metrics time to stabilize. A var, not a
// const, so tests can shorten it.
var InterScenarioDelay = 10 * time.Second

// Run executes every scenario in g strictly in order, sleeping
// InterScenarioDelay between them. One scenario's failure does not abort
// the group; its failure is recorded and the group continues.
func (g *Group) Run(ctx context.Context, runner Runner) (*result.ScenarioGroupResult, error) {
	results := make([]result.ScenarioResult, 0, len(g.Scenarios))

	for i, s := range g.Scenarios {
		res, err := runner.Run(ctx, s)
		if err != nil {
			errMsg := err.Error()
			res = &result.ScenarioResult{
				ScenarioID:   s.ScenarioID,
				DeploymentID: g.Deployment.DeploymentID,
				ExecutorType: s.ExecutorName,
				Status:       result.ScenarioStatus{Status: "failed", Error: &errMsg},
			}
		}
		results = append(results, *res)

		if i < len(g.Scenarios)-1 {
			select {
			case <-ctx.Done():
				return groupResult(g, results), ctx.Err()
			case <-time.After(InterScenarioDelay):
			}
		}
	}

	return groupResult(g, results), nil
}

func groupResult(g *Group, results []result.ScenarioResult) *result.ScenarioGroupResult {
	details := result.DeploymentDetails{
		Runtime:  g.Deployment.Config.Runtime,
		Instance: g.Deployment.Config.Instance,
	}
	// EndpointRef is only populated once an endpoint actually came up
	// (§4.8 step 6); a group that never reached a running endpoint leaves
	// endpoint_details null.
	if h, ok := g.Deployment.EndpointRef.(*endpoint.Handle); ok {
		details.EndpointDetails = h.Raw
	}
	return &result.ScenarioGroupResult{
		DeploymentID:      g.Deployment.DeploymentID,
		ScenarioResults:   results,
		DeploymentDetails: details,
	}
}
