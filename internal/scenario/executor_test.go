package scenario

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/loadbench/loadbench/internal/config"
)

// fakeLoadgen writes a tiny shell script standing in for the real
// load-generator binary, so LocalExecutor's subprocess supervision can be
// exercised without the real binary. It accepts the same "run --quiet
// <script>" argument shape.
func fakeLoadgen(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakeloadgen.sh")
	full := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(full), 0o755); err != nil {
		t.Fatalf("write fake loadgen: %v", err)
	}
	return path
}

func runningDeploymentWithHandle() *config.Deployment {
	d := config.NewDeployment(config.DeploymentConfig{Namespace: "team-a"})
	d.State = config.StateRunning
	d.EndpointRef = &testHandle{url: "http://endpoint.local"}
	return d
}

type testHandle struct{ url string }

func (h *testHandle) Host() string { return h.url }

func TestLocalExecutorParsesJSONMetricsOnSuccess(t *testing.T) {
	bin := fakeLoadgen(t, `echo '{"p50_latency_ms": 120}'`)
	exec := NewLocalExecutor(bin)

	dep := runningDeploymentWithHandle()
	s := Scenario{
		ScenarioID:   "s1",
		Deployment:   dep,
		ExecutorName: "constant_arrival_rate",
		ExecutorVariables: map[string]any{
			"pre_allocated_vus": 2, "rate": 1, "duration": "1s",
		},
		DatasetFilePath: "/tmp/data.json",
	}

	res, err := exec.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status.Status != "success" {
		t.Errorf("expected success status, got %+v", res.Status)
	}
	if res.Metrics == nil {
		t.Error("expected metrics to be populated")
	}
	if res.RenderedScript == "" {
		t.Error("expected rendered script text to be captured")
	}
}

func TestLocalExecutorFailsOnNonzeroExit(t *testing.T) {
	bin := fakeLoadgen(t, `echo "boom" >&2; exit 1`)
	exec := NewLocalExecutor(bin)

	dep := runningDeploymentWithHandle()
	s := Scenario{ScenarioID: "s1", Deployment: dep, ExecutorName: "constant_arrival_rate", DatasetFilePath: "/tmp/d.json"}

	res, err := exec.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status.Status != "failed" || res.Status.Error == nil || *res.Status.Error != "boom" {
		t.Errorf("expected failed status with stderr captured, got %+v", res.Status)
	}
}

func TestLocalExecutorFailsOnNonJSONOutput(t *testing.T) {
	bin := fakeLoadgen(t, `echo "not json"`)
	exec := NewLocalExecutor(bin)

	dep := runningDeploymentWithHandle()
	s := Scenario{ScenarioID: "s1", Deployment: dep, ExecutorName: "constant_arrival_rate", DatasetFilePath: "/tmp/d.json"}

	res, err := exec.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status.Status != "failed" || res.Status.Error == nil || *res.Status.Error != "Failed to parse output as JSON" {
		t.Errorf("expected JSON-parse failure status, got %+v", res.Status)
	}
}

func TestLocalExecutorRejectsNonRunningDeployment(t *testing.T) {
	exec := NewLocalExecutor("/bin/true")
	dep := config.NewDeployment(config.DeploymentConfig{})
	s := Scenario{ScenarioID: "s1", Deployment: dep, ExecutorName: "constant_arrival_rate"}

	_, err := exec.Run(context.Background(), s)
	if err == nil {
		t.Fatal("expected deployment_not_running error")
	}
}
