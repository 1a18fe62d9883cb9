// Package execjob is an alternate Scenario executor backend: instead of a
// local subprocess, it runs the load-generator as a Kubernetes Job and
// reads its pod logs as stdout. It satisfies the same
// Run(ctx, scenario) (*result.ScenarioResult, error) contract as
// internal/scenario's LocalExecutor, selected via configuration.
package execjob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/loadbench/loadbench/internal/config"
	"github.com/loadbench/loadbench/internal/errs"
	"github.com/loadbench/loadbench/internal/result"
	"github.com/loadbench/loadbench/internal/scenario"
	"github.com/loadbench/loadbench/internal/script"
)

const (
	jobPoll    = 5 * time.Second
	jobTimeout = 30 * time.Minute
)

// Executor runs scenarios as Kubernetes Jobs in namespace, using image as
// the load-generator container image.
type Executor struct {
	client    kubernetes.Interface
	namespace string
	image     string

	// pollInterval/timeout are vars-through-fields so tests can shorten
	// them without touching package-level state.
	pollInterval time.Duration
	timeout      time.Duration
}

// New returns an Executor submitting Jobs against namespace with image.
func New(client kubernetes.Interface, namespace, image string) *Executor {
	return &Executor{
		client:       client,
		namespace:    namespace,
		image:        image,
		pollInterval: jobPoll,
		timeout:      jobTimeout,
	}
}

var _ scenario.Runner = (*Executor)(nil)

// Run renders s's script into a ConfigMap-mounted file, submits a Job that
// runs the load-generator binary against it, waits for completion, and
// parses the collected pod logs exactly as LocalExecutor does.
func (e *Executor) Run(ctx context.Context, s scenario.Scenario) (*result.ScenarioResult, error) {
	if s.Deployment.EndpointRef == nil || s.Deployment.State != config.StateRunning {
		return nil, errs.New(errs.DeploymentNotRunning, fmt.Sprintf("scenario %s: deployment %s is not running", s.ScenarioID, s.Deployment.DeploymentID))
	}

	host := hostOf(s.Deployment.EndpointRef)
	vars := script.Vars{Host: host, DataFile: s.DatasetFilePath}
	if v, ok := s.ExecutorVariables["pre_allocated_vus"].(int); ok {
		vars.PreAllocatedVUs = v
	}
	if v, ok := s.ExecutorVariables["rate"].(int); ok {
		vars.Rate = v
	}
	if v, ok := s.ExecutorVariables["duration"].(string); ok {
		vars.Duration = v
	}

	scriptPath, err := script.Render(s.ExecutorName, vars)
	if err != nil {
		return nil, errs.Wrap(errs.ParseError, fmt.Sprintf("render script for scenario %s", s.ScenarioID), err)
	}
	defer os.Remove(scriptPath)
	scriptText, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, errs.Wrap(errs.ParseError, "read rendered script", err)
	}

	jobName := "loadgen-" + s.ScenarioID
	if err := e.createJob(ctx, jobName, scriptPath); err != nil {
		return nil, errs.Wrap(errs.EndpointError, fmt.Sprintf("create loadgen job %s", jobName), err)
	}
	defer e.cleanup(context.Background(), jobName)

	logs, jobErr := e.waitAndCollect(ctx, jobName)

	res := &result.ScenarioResult{
		ScenarioID:     s.ScenarioID,
		DeploymentID:   s.Deployment.DeploymentID,
		ExecutorType:   s.ExecutorName,
		RenderedScript: string(scriptText),
	}

	if jobErr != nil {
		msg := jobErr.Error()
		res.Status = result.ScenarioStatus{Status: "failed", Error: &msg}
		return res, nil
	}

	trimmed := bytes.TrimSpace(logs)
	var metrics json.RawMessage
	if err := json.Unmarshal(trimmed, &metrics); err != nil || len(trimmed) == 0 || trimmed[0] != '{' {
		msg := "Failed to parse output as JSON"
		res.Status = result.ScenarioStatus{Status: "failed", Error: &msg}
		return res, nil
	}

	res.Metrics = metrics
	res.Status = result.ScenarioStatus{Status: "success"}
	return res, nil
}

func hostOf(ref config.EndpointRef) string {
	type hostProvider interface{ Host() string }
	if h, ok := ref.(hostProvider); ok {
		return h.Host()
	}
	return ""
}

func (e *Executor) createJob(ctx context.Context, name, scriptPath string) error {
	backoff := int32(0)
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: e.namespace},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoff,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"job-name": name}},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:    "loadgen",
							Image:   e.image,
							Command: []string{"loadgen", "run", "--quiet", scriptPath},
						},
					},
				},
			},
		},
	}
	_, err := e.client.BatchV1().Jobs(e.namespace).Create(ctx, job, metav1.CreateOptions{})
	return err
}

func (e *Executor) waitAndCollect(ctx context.Context, jobName string) ([]byte, error) {
	deadline := time.Now().Add(e.timeout)
	for time.Now().Before(deadline) {
		job, err := e.client.BatchV1().Jobs(e.namespace).Get(ctx, jobName, metav1.GetOptions{})
		if err != nil {
			return nil, err
		}
		for _, cond := range job.Status.Conditions {
			if cond.Type == batchv1.JobComplete && cond.Status == corev1.ConditionTrue {
				return e.readLogs(ctx, jobName)
			}
			if cond.Type == batchv1.JobFailed && cond.Status == corev1.ConditionTrue {
				return nil, fmt.Errorf("loadgen job %s failed: %s", jobName, cond.Message)
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.pollInterval):
		}
	}
	return nil, fmt.Errorf("loadgen job %s timed out after %v", jobName, e.timeout)
}

func (e *Executor) readLogs(ctx context.Context, jobName string) ([]byte, error) {
	pods, err := e.client.CoreV1().Pods(e.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "job-name=" + jobName,
	})
	if err != nil {
		return nil, fmt.Errorf("list job pods: %w", err)
	}
	if len(pods.Items) == 0 {
		return nil, fmt.Errorf("no pods found for job %s", jobName)
	}

	req := e.client.CoreV1().Pods(e.namespace).GetLogs(pods.Items[0].Name, &corev1.PodLogOptions{Container: "loadgen"})
	stream, err := req.Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream pod logs: %w", err)
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		return nil, fmt.Errorf("read pod logs: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Executor) cleanup(ctx context.Context, jobName string) {
	propagation := metav1.DeletePropagationBackground
	_ = e.client.BatchV1().Jobs(e.namespace).Delete(ctx, jobName, metav1.DeleteOptions{PropagationPolicy: &propagation})
}
