// Package api is the monitoring server's HTTP surface: submit a benchmark
// run, poll its in-memory status, and trigger the catalog-seed Kubernetes
// Job. It keeps the teacher's bare http.ServeMux + method-and-path routing
// idiom; there is no database behind it, only a Registry.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/loadbench/loadbench/internal/config"
	"github.com/loadbench/loadbench/internal/scenario"
	"github.com/loadbench/loadbench/internal/scenario/execjob"
	"github.com/loadbench/loadbench/internal/scheduler"
)

// Server holds the dependencies behind the monitoring routes.
type Server struct {
	registry  *Registry
	driver    scheduler.EndpointDriver
	quota     scheduler.QuotaFetcher
	k8sClient kubernetes.Interface
}

// NewServer returns a Server driving deployments through driver, reading
// quota through quotaFetcher, and launching catalog-seed Jobs through
// k8sClient.
func NewServer(registry *Registry, driver scheduler.EndpointDriver, quotaFetcher scheduler.QuotaFetcher, k8sClient kubernetes.Interface) *Server {
	return &Server{registry: registry, driver: driver, quota: quotaFetcher, k8sClient: k8sClient}
}

// RegisterRoutes registers all monitoring routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/runs", s.handleCreateRun)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("POST /api/v1/catalog/seed", s.handleCatalogSeed)
	mux.HandleFunc("GET /api/v1/catalog/seed", s.handleCatalogSeedStatus)
}

// scenarioRequest is the wire shape of one scenario within a run request.
type scenarioRequest struct {
	ScenarioID        string         `json:"scenario_id"`
	ExecutorName      string         `json:"executor_name"`
	ExecutorVariables map[string]any `json:"executor_variables"`
	DatasetFilePath   string         `json:"dataset_file_path"`
}

// runRequest is the POST /api/v1/runs body: one deployment plus the
// scenario group to execute against it.
type runRequest struct {
	Runtime           config.RuntimeConfig  `json:"runtime"`
	Instance          config.InstanceConfig `json:"instance"`
	Namespace         string                `json:"namespace"`
	LoadgenBinaryPath string                `json:"loadgen_binary_path"`
	// ExecutorBackend selects how scenarios run: "local" (default) spawns
	// the load generator as a subprocess of this server; "execjob" runs it
	// as a Kubernetes Job in Namespace instead, using EXECJOB_IMAGE.
	ExecutorBackend string            `json:"executor_backend"`
	Scenarios       []scenarioRequest `json:"scenarios"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Scenarios) == 0 {
		writeError(w, http.StatusBadRequest, "scenarios must not be empty")
		return
	}
	depCfg, err := config.NewDeploymentConfig(req.Runtime, req.Instance, req.Namespace, nil)
	if err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	dep := config.NewDeployment(*depCfg)

	scenarios := make([]scenario.Scenario, 0, len(req.Scenarios))
	for _, sr := range req.Scenarios {
		scenarios = append(scenarios, scenario.Scenario{
			ScenarioID:        sr.ScenarioID,
			Deployment:        dep,
			ExecutorName:      sr.ExecutorName,
			ExecutorVariables: normalizeExecutorVariables(sr.ExecutorVariables),
			DatasetFilePath:   sr.DatasetFilePath,
		})
	}
	group, err := scenario.NewGroup(dep, scenarios)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runner, err := s.buildRunner(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := s.registry.Create()

	// Launch the benchmark in the background with a detached context so
	// it isn't canceled when the HTTP response is sent.
	go func() {
		s.registry.MarkRunning(rec.ID)
		sched := scheduler.New(s.driver, s.quota, req.Namespace)
		groups, runErr := sched.Run(context.Background(), []scheduler.Task{{Group: group, Runner: runner}})
		if runErr != nil {
			log.Printf("benchmark run %s failed: %v", rec.ID, runErr)
		}
		s.registry.Complete(rec.ID, groups, runErr)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"id": rec.ID, "status": "pending"})
}

// buildRunner selects the scenario executor backend named by
// req.ExecutorBackend: "local" (default) drives req.LoadgenBinaryPath as a
// subprocess; "execjob" runs scenarios as Kubernetes Jobs via s.k8sClient,
// using the EXECJOB_IMAGE environment variable as the load-generator image.
func (s *Server) buildRunner(req runRequest) (scenario.Runner, error) {
	switch req.ExecutorBackend {
	case "", "local":
		if req.LoadgenBinaryPath == "" {
			return nil, fmt.Errorf("loadgen_binary_path is required for the local executor backend")
		}
		return scenario.NewLocalExecutor(req.LoadgenBinaryPath), nil
	case "execjob":
		image := os.Getenv("EXECJOB_IMAGE")
		if image == "" {
			return nil, fmt.Errorf("EXECJOB_IMAGE is not configured")
		}
		return execjob.New(s.k8sClient, req.Namespace, image), nil
	default:
		return nil, fmt.Errorf("unknown executor_backend %q (want local or execjob)", req.ExecutorBackend)
	}
}

// normalizeExecutorVariables converts JSON-decoded numeric fields back to
// int: encoding/json always decodes a JSON number into a map[string]any as
// float64, but scenario's executor expects pre_allocated_vus/rate/
// max_new_tokens as int.
func normalizeExecutorVariables(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		if f, ok := v.(float64); ok {
			out[k] = int(f)
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

const (
	seedNamespace = "loadbench"
	seedLabelKey  = "loadbench/role"
	seedLabelVal  = "catalog-seed"
)

func (s *Server) handleCatalogSeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	toolsImage := os.Getenv("TOOLS_IMAGE")
	if toolsImage == "" {
		writeError(w, http.StatusInternalServerError, "TOOLS_IMAGE not configured")
		return
	}
	catalogAPIURL := os.Getenv("CATALOG_API_URL")
	if catalogAPIURL == "" {
		writeError(w, http.StatusInternalServerError, "CATALOG_API_URL not configured")
		return
	}

	jobs, err := s.k8sClient.BatchV1().Jobs(seedNamespace).List(ctx, metav1.ListOptions{
		LabelSelector: seedLabelKey + "=" + seedLabelVal,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list seed jobs")
		return
	}
	for _, j := range jobs.Items {
		if j.Status.Active > 0 {
			writeError(w, http.StatusConflict, fmt.Sprintf("a catalog seed job is already running: %s", j.Name))
			return
		}
	}

	jobName := fmt.Sprintf("catalog-seed-%d", time.Now().Unix())
	backoffLimit := int32(1)
	ttl := int32(86400)

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: seedNamespace,
			Labels:    map[string]string{seedLabelKey: seedLabelVal},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:    "catalog-seed",
							Image:   toolsImage,
							Command: []string{"/bin/bash", "/scripts/seed-catalog.sh"},
							Env: []corev1.EnvVar{
								{Name: "CATALOG_API_URL", Value: catalogAPIURL},
							},
						},
					},
				},
			},
		},
	}

	created, err := s.k8sClient.BatchV1().Jobs(seedNamespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create seed job: %v", err))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_name": created.Name, "status": "active"})
}

func (s *Server) handleCatalogSeedStatus(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.k8sClient.BatchV1().Jobs(seedNamespace).List(r.Context(), metav1.ListOptions{
		LabelSelector: seedLabelKey + "=" + seedLabelVal,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list seed jobs")
		return
	}
	if len(jobs.Items) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "none"})
		return
	}

	sort.Slice(jobs.Items, func(i, j int) bool {
		return jobs.Items[i].CreationTimestamp.After(jobs.Items[j].CreationTimestamp.Time)
	})
	latest := jobs.Items[0]

	resp := map[string]any{"job_name": latest.Name, "status": seedJobStatus(&latest)}
	if latest.Status.StartTime != nil {
		resp["started_at"] = latest.Status.StartTime.Format(time.RFC3339)
	}
	if latest.Status.CompletionTime != nil {
		resp["completed_at"] = latest.Status.CompletionTime.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func seedJobStatus(job *batchv1.Job) string {
	for _, c := range job.Status.Conditions {
		if c.Type == batchv1.JobComplete && c.Status == corev1.ConditionTrue {
			return "succeeded"
		}
		if c.Type == batchv1.JobFailed && c.Status == corev1.ConditionTrue {
			return "failed"
		}
	}
	return "active"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
