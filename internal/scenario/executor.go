package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/loadbench/loadbench/internal/config"
	"github.com/loadbench/loadbench/internal/errs"
	"github.com/loadbench/loadbench/internal/result"
	"github.com/loadbench/loadbench/internal/script"
)

// hostProvider is implemented by concrete EndpointRef types (e.g.
// *internal/endpoint.Handle) that expose the URL scenarios target.
type hostProvider interface {
	Host() string
}

// LocalExecutor runs scenarios by spawning the load-generator binary as a
// local subprocess, the default and required backend (the end-to-end
// scenarios exercise it directly). It places each subprocess in its own
// process group so cancellation can signal the whole group rather than
// leaving orphaned children behind.
type LocalExecutor struct {
	BinaryPath string
}

// NewLocalExecutor returns a LocalExecutor invoking binaryPath.
func NewLocalExecutor(binaryPath string) *LocalExecutor {
	return &LocalExecutor{BinaryPath: binaryPath}
}

// Run renders s's script, spawns the load-generator binary against it, and
// parses the result. scenario.Deployment.EndpointRef must exist and be
// running; otherwise Run fails immediately with deployment_not_running.
func (e *LocalExecutor) Run(ctx context.Context, s Scenario) (*result.ScenarioResult, error) {
	if s.Deployment.EndpointRef == nil || s.Deployment.State != config.StateRunning {
		return nil, errs.New(errs.DeploymentNotRunning, fmt.Sprintf("scenario %s: deployment %s is not running", s.ScenarioID, s.Deployment.DeploymentID))
	}

	vars := mergeVars(s, endpointURL(s.Deployment.EndpointRef))

	scriptPath, err := script.Render(s.ExecutorName, vars)
	if err != nil {
		return nil, errs.Wrap(errs.ParseError, fmt.Sprintf("render script for scenario %s", s.ScenarioID), err)
	}
	defer os.Remove(scriptPath)

	scriptText, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, errs.Wrap(errs.ParseError, "read rendered script", err)
	}

	stdout, stderr, runErr := e.runSubprocess(ctx, scriptPath)

	res := &result.ScenarioResult{
		ScenarioID:        s.ScenarioID,
		DeploymentID:      s.Deployment.DeploymentID,
		ExecutorType:      s.ExecutorName,
		ExecutorVariables: varsToMap(vars),
		RenderedScript:    string(scriptText),
	}

	if runErr != nil {
		errMsg := strings.TrimSpace(string(stderr))
		res.Status = result.ScenarioStatus{Status: "failed", Error: &errMsg}
		return res, nil
	}

	trimmed := bytes.TrimSpace(stdout)
	var metrics json.RawMessage
	if err := json.Unmarshal(trimmed, &metrics); err != nil || !isJSONObject(trimmed) {
		msg := "Failed to parse output as JSON"
		res.Status = result.ScenarioStatus{Status: "failed", Error: &msg}
		return res, nil
	}

	res.Metrics = metrics
	res.Status = result.ScenarioStatus{Status: "success"}
	return res, nil
}

func endpointURL(ref config.EndpointRef) string {
	if h, ok := ref.(hostProvider); ok {
		return h.Host()
	}
	return ""
}

func isJSONObject(b []byte) bool {
	return len(b) > 0 && b[0] == '{'
}

// runSubprocess spawns e.BinaryPath in its own process group, capturing
// stdout and stderr separately (no interleaving). Cancellation signals the
// whole process group with SIGTERM.
func (e *LocalExecutor) runSubprocess(ctx context.Context, scriptPath string) (stdout, stderr []byte, err error) {
	cmd := exec.Command(e.BinaryPath, "run", "--quiet", scriptPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if startErr := cmd.Start(); startErr != nil {
		return nil, nil, startErr
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		<-done
		return outBuf.Bytes(), errBuf.Bytes(), ctx.Err()
	case waitErr := <-done:
		return outBuf.Bytes(), errBuf.Bytes(), waitErr
	}
}

func mergeVars(s Scenario, host string) script.Vars {
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
	if v, ok := s.ExecutorVariables["max_new_tokens"].(int); ok {
		vars.MaxNewTokens = v
	}
	return vars
}

func varsToMap(v script.Vars) map[string]any {
	m := map[string]any{
		"host":              v.Host,
		"data_file":         v.DataFile,
		"pre_allocated_vus": v.PreAllocatedVUs,
		"rate":              v.Rate,
		"duration":          v.Duration,
	}
	if v.MaxNewTokens != 0 {
		m["max_new_tokens"] = v.MaxNewTokens
	}
	return m
}
