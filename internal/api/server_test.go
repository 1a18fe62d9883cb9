package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"k8s.io/client-go/kubernetes/fake"

	"github.com/loadbench/loadbench/internal/config"
	"github.com/loadbench/loadbench/internal/endpoint"
	"github.com/loadbench/loadbench/internal/scenario/execjob"
	"github.com/loadbench/loadbench/internal/scheduler"
)

// fakeDriver satisfies scheduler.EndpointDriver, always succeeding
// immediately with a handle pointing at an httptest server.
type fakeDriver struct {
	host string
}

func (d *fakeDriver) Create(ctx context.Context, cfg config.DeploymentConfig, name string) (*endpoint.Handle, error) {
	return &endpoint.Handle{Name: name, Namespace: cfg.Namespace, URL: d.host}, nil
}
func (d *fakeDriver) Resume(ctx context.Context, h *endpoint.Handle) error { return nil }
func (d *fakeDriver) Delete(ctx context.Context, h *endpoint.Handle, namespace string) error {
	return nil
}
func (d *fakeDriver) Status(ctx context.Context, h *endpoint.Handle) (string, error) {
	return "running", nil
}
func (d *fakeDriver) Logs(ctx context.Context, name string) (string, error) { return "", nil }

// fakeQuota satisfies scheduler.QuotaFetcher with ample static capacity.
type fakeQuota struct{}

func (fakeQuota) FetchQuota(ctx context.Context, namespace string) (*scheduler.Quota, error) {
	return &scheduler.Quota{Entries: []scheduler.QuotaEntry{
		{Vendor: "aws", InstanceType: "g5.xlarge", MaxAccelerators: 8},
	}}, nil
}

func setupServer() (*Server, *http.ServeMux) {
	registry := NewRegistry()
	srv := NewServer(registry, &fakeDriver{}, fakeQuota{}, fake.NewSimpleClientset())
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return srv, mux
}

func sampleRunRequest() runRequest {
	return runRequest{
		Runtime: config.RuntimeConfig{
			ModelID:               "meta-llama/Llama-3.1-8B",
			MaxBatchPrefillTokens: 4096,
			MaxInputTokens:        2048,
			MaxTotalTokens:        4096,
			NumShard:              1,
		},
		Instance: config.InstanceConfig{
			ID:           "aws-g5.xlarge",
			Vendor:       "aws",
			Region:       "us-east-2",
			InstanceType: "g5.xlarge",
			NumGPUs:      1,
		},
		Namespace:         "team-a",
		LoadgenBinaryPath: "/bin/true",
		Scenarios: []scenarioRequest{
			{
				ScenarioID:   "s1",
				ExecutorName: "constant_arrival_rate",
				ExecutorVariables: map[string]any{
					"pre_allocated_vus": 10,
					"rate":              5,
					"duration":          "30s",
					"max_new_tokens":    128,
				},
			},
		},
	}
}

func TestHandleCreateRunAcceptsAndReturnsPendingID(t *testing.T) {
	_, mux := setupServer()

	b, _ := json.Marshal(sampleRunRequest())
	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewReader(b))
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["id"] == "" {
		t.Error("response missing run id")
	}
	if resp["status"] != "pending" {
		t.Errorf("status = %s, want pending", resp["status"])
	}
}

func TestHandleCreateRunRejectsInvalidJSON(t *testing.T) {
	_, mux := setupServer()

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleCreateRunRejectsEmptyScenarios(t *testing.T) {
	_, mux := setupServer()

	body := sampleRunRequest()
	body.Scenarios = nil
	b, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewReader(b))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleCreateRunRejectsMissingLoadgenBinaryForLocalBackend(t *testing.T) {
	_, mux := setupServer()

	body := sampleRunRequest()
	body.LoadgenBinaryPath = ""
	b, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewReader(b))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestHandleCreateRunRejectsUnknownExecutorBackend(t *testing.T) {
	_, mux := setupServer()

	body := sampleRunRequest()
	body.ExecutorBackend = "bogus"
	b, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewReader(b))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestBuildRunnerSelectsExecjobBackend(t *testing.T) {
	t.Setenv("EXECJOB_IMAGE", "loadgen:latest")

	srv, _ := setupServer()
	req := sampleRunRequest()
	req.ExecutorBackend = "execjob"

	runner, err := srv.buildRunner(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := runner.(*execjob.Executor); !ok {
		t.Errorf("expected a *execjob.Executor, got %T", runner)
	}
}

func TestBuildRunnerExecjobRequiresImageConfigured(t *testing.T) {
	t.Setenv("EXECJOB_IMAGE", "")

	srv, _ := setupServer()
	req := sampleRunRequest()
	req.ExecutorBackend = "execjob"

	if _, err := srv.buildRunner(req); err == nil {
		t.Fatal("expected an error when EXECJOB_IMAGE is unset")
	}
}

func TestHandleGetRunEventuallySucceeds(t *testing.T) {
	_, mux := setupServer()

	b, _ := json.Marshal(sampleRunRequest())
	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewReader(b))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var created map[string]string
	json.NewDecoder(w.Body).Decode(&created)
	id := created["id"]

	// deployAndBenchmark sleeps out scheduler.teardownDelay (5s default)
	// before tearing down a deployment it created, so the terminal status
	// isn't visible until the teardown completes.
	deadline := time.Now().Add(8 * time.Second)
	var rec RunRecord
	for time.Now().Before(deadline) {
		getReq := httptest.NewRequest("GET", "/api/v1/runs/"+id, nil)
		getW := httptest.NewRecorder()
		mux.ServeHTTP(getW, getReq)
		json.NewDecoder(getW.Body).Decode(&rec)
		if rec.Status == "succeeded" || rec.Status == "failed" {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if rec.Status != "succeeded" {
		t.Fatalf("run status = %s, want succeeded (groups: %+v)", rec.Status, rec.Groups)
	}
	if len(rec.Groups) != 1 {
		t.Fatalf("expected 1 group result, got %d", len(rec.Groups))
	}
}

func TestHandleGetRunNotFound(t *testing.T) {
	_, mux := setupServer()

	req := httptest.NewRequest("GET", "/api/v1/runs/nonexistent", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleListRunsReturnsEmptySliceNotNull(t *testing.T) {
	_, mux := setupServer()

	req := httptest.NewRequest("GET", "/api/v1/runs", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Body.String() == "null\n" {
		t.Error("expected empty JSON array, got null")
	}
}

func TestHandleCatalogSeedRequiresConfig(t *testing.T) {
	_, mux := setupServer()

	req := httptest.NewRequest("POST", "/api/v1/catalog/seed", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d (TOOLS_IMAGE unset)", w.Code, http.StatusInternalServerError)
	}
}

func TestHandleCatalogSeedStatusReportsNoneWhenNeverRun(t *testing.T) {
	_, mux := setupServer()

	req := httptest.NewRequest("GET", "/api/v1/catalog/seed", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "none" {
		t.Errorf("status = %s, want none", resp["status"])
	}
}
