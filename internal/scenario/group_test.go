package scenario

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loadbench/loadbench/internal/config"
	"github.com/loadbench/loadbench/internal/endpoint"
	"github.com/loadbench/loadbench/internal/result"
)

type fakeRunner struct {
	calls   []string
	failOn  map[string]bool
}

func (f *fakeRunner) Run(ctx context.Context, s Scenario) (*result.ScenarioResult, error) {
	f.calls = append(f.calls, s.ScenarioID)
	if f.failOn[s.ScenarioID] {
		return nil, errors.New("boom")
	}
	return &result.ScenarioResult{
		ScenarioID: s.ScenarioID,
		Status:     result.ScenarioStatus{Status: "success"},
	}, nil
}

func testDeployment() *config.Deployment {
	d := config.NewDeployment(config.DeploymentConfig{Namespace: "team-a"})
	d.State = config.StateRunning
	return d
}

func TestGroupRunContinuesAfterScenarioFailure(t *testing.T) {
	orig := InterScenarioDelay
	InterScenarioDelay = time.Millisecond
	defer func() { InterScenarioDelay = orig }()

	dep := testDeployment()
	g, err := NewGroup(dep, []Scenario{
		{ScenarioID: "s1", Deployment: dep},
		{ScenarioID: "s2", Deployment: dep},
		{ScenarioID: "s3", Deployment: dep},
	})
	if err != nil {
		t.Fatalf("unexpected error building group: %v", err)
	}

	runner := &fakeRunner{failOn: map[string]bool{"s2": true}}
	gr, err := g.Run(context.Background(), runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gr.ScenarioResults) != 3 {
		t.Fatalf("expected 3 scenario results despite one failure, got %d", len(gr.ScenarioResults))
	}
	if gr.ScenarioResults[1].Status.Status != "failed" {
		t.Errorf("expected s2 to be recorded as failed, got %+v", gr.ScenarioResults[1])
	}
	if gr.ScenarioResults[0].Status.Status != "success" || gr.ScenarioResults[2].Status.Status != "success" {
		t.Errorf("expected s1 and s3 to succeed, got %+v", gr.ScenarioResults)
	}
	if len(runner.calls) != 3 {
		t.Errorf("expected all 3 scenarios to run regardless of s2's failure, got %v", runner.calls)
	}
}

func TestGroupRunCapturesEndpointDetailsFromHandle(t *testing.T) {
	dep := testDeployment()
	dep.EndpointRef = &endpoint.Handle{Name: "ep-1", Raw: []byte(`{"name":"ep-1","status":"running"}`)}

	g, err := NewGroup(dep, []Scenario{{ScenarioID: "s1", Deployment: dep}})
	if err != nil {
		t.Fatalf("unexpected error building group: %v", err)
	}

	gr, err := g.Run(context.Background(), &fakeRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(gr.DeploymentDetails.EndpointDetails) != `{"name":"ep-1","status":"running"}` {
		t.Errorf("expected endpoint_details to carry the handle's raw descriptor, got %q", gr.DeploymentDetails.EndpointDetails)
	}
}

func TestGroupRunLeavesEndpointDetailsNilWithoutAHandle(t *testing.T) {
	dep := testDeployment()

	g, err := NewGroup(dep, []Scenario{{ScenarioID: "s1", Deployment: dep}})
	if err != nil {
		t.Fatalf("unexpected error building group: %v", err)
	}

	gr, err := g.Run(context.Background(), &fakeRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gr.DeploymentDetails.EndpointDetails != nil {
		t.Errorf("expected nil endpoint_details when no endpoint ever came up, got %q", gr.DeploymentDetails.EndpointDetails)
	}
}

func TestNewGroupRejectsMismatchedDeployment(t *testing.T) {
	dep := testDeployment()
	other := testDeployment()
	_, err := NewGroup(dep, []Scenario{{ScenarioID: "s1", Deployment: other}})
	if err == nil {
		t.Fatal("expected error for scenario targeting a different deployment")
	}
}
