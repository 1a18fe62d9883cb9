// Package endpoint is a thin façade over the inference endpoint control
// plane: create, adopt, resume, delete, and status, driven entirely over
// HTTP. It never touches a database or a Kubernetes API directly — the
// control plane itself is an external HTTP service.
package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/loadbench/loadbench/internal/config"
	"github.com/loadbench/loadbench/internal/errs"
)

const (
	scaleToZeroTimeoutSeconds = 30
	healthRoute               = "/health"

	deleteMaxRetries = 3
)

// deleteBackoffMin/Max and readyPollInterval are vars, not consts, so tests
// can shorten them instead of waiting out real delays.
var (
	deleteBackoffMin = 4 * time.Second
	deleteBackoffMax = 10 * time.Second
)

// TokenSource supplies the bearer token used to authenticate against the
// control plane. StaticToken wraps a plain string; internal/endpoint's
// secretsmanager-backed implementation (see secrets.go) is an alternate
// source.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same string, the
// plain-environment-variable path.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Handle is the opaque endpoint reference populated once an endpoint
// exists. It satisfies config.EndpointRef.
type Handle struct {
	Name      string
	Namespace string
	URL       string
	Raw       json.RawMessage
}

// Host returns the endpoint's URL, satisfying the scenario package's
// hostProvider interface.
func (h *Handle) Host() string { return h.URL }

// ImagePreflightChecker is consulted (if non-nil) before Create submits, to
// surface a missing custom inference image as an early endpoint_error
// instead of a slower control-plane failure. internal/endpoint's
// ecr-backed implementation is in imagecheck.go.
type ImagePreflightChecker interface {
	CheckImage(ctx context.Context, imageTag string) error
}

// Client drives the endpoint control plane over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	imageTag   string
	preflight  ImagePreflightChecker
}

// New returns a Client against baseURL, authenticating requests with
// tokens. imageTag and preflight are optional; when both are set, Create
// runs the preflight image check before submitting.
func New(baseURL string, tokens TokenSource, imageTag string, preflight ImagePreflightChecker) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		tokens:     tokens,
		imageTag:   imageTag,
		preflight:  preflight,
	}
}

type createRequest struct {
	Name            string            `json:"name"`
	Framework       string            `json:"framework"`
	Task            string            `json:"task"`
	Accelerator     string            `json:"accelerator"`
	InstanceType    string            `json:"instance_type"`
	Vendor          string            `json:"vendor"`
	Region          string            `json:"region"`
	MinReplica      int               `json:"min_replica"`
	MaxReplica      int               `json:"max_replica"`
	ScaleToZeroSecs int               `json:"scale_to_zero_timeout_seconds"`
	Image           string            `json:"image"`
	HealthRoute     string            `json:"health_route"`
	Env             map[string]string `json:"env"`
}

type endpointDoc struct {
	Name         string            `json:"name"`
	Status       string            `json:"status"`
	URL          string            `json:"url"`
	Env          map[string]string `json:"env"`
	Vendor       string            `json:"vendor"`
	Region       string            `json:"region"`
	InstanceType string            `json:"instance_type"`
}

// Create submits a new endpoint for cfg and blocks until it reports
// running. Returns an endpoint_error on any failure along the way,
// including a failing preflight image check.
func (c *Client) Create(ctx context.Context, cfg config.DeploymentConfig, name string) (*Handle, error) {
	if c.preflight != nil && c.imageTag != "" {
		if err := c.preflight.CheckImage(ctx, c.imageTag); err != nil {
			return nil, errs.Wrap(errs.EndpointError, "preflight image check failed", err)
		}
	}

	req := createRequest{
		Name:            name,
		Framework:       "pytorch",
		Task:            "text-generation",
		Accelerator:     "gpu",
		InstanceType:    cfg.Instance.InstanceType,
		Vendor:          cfg.Instance.Vendor,
		Region:          cfg.Instance.Region,
		MinReplica:      0,
		MaxReplica:      1,
		ScaleToZeroSecs: scaleToZeroTimeoutSeconds,
		Image:           c.imageTag,
		HealthRoute:     healthRoute,
		Env:             cfg.Runtime.EnvVars(),
	}

	var doc endpointDoc
	raw, err := c.doJSON(ctx, http.MethodPost, "/endpoints", req, &doc)
	if err != nil {
		return nil, errs.Wrap(errs.EndpointError, fmt.Sprintf("create endpoint %s", name), err)
	}

	handle := &Handle{Name: doc.Name, Namespace: cfg.Namespace, URL: doc.URL, Raw: raw}
	if err := c.waitRunning(ctx, handle); err != nil {
		return nil, errs.Wrap(errs.EndpointError, fmt.Sprintf("endpoint %s never became running", name), err)
	}
	return handle, nil
}

// Adopt retrieves an existing endpoint by name. If it is initializing, it
// waits; if it is any other non-running state, it resumes and waits; an
// already-running endpoint is returned as-is. The returned
// config.DeploymentConfig is reconstructed from the endpoint's own
// descriptor (env vars and compute/provider fields), not supplied by the
// caller.
func (c *Client) Adopt(ctx context.Context, name, namespace string) (*Handle, *config.DeploymentConfig, error) {
	doc, raw, err := c.get(ctx, name)
	if err != nil {
		return nil, nil, errs.Wrap(errs.NotFound, fmt.Sprintf("adopt endpoint %s", name), err)
	}

	handle := &Handle{Name: doc.Name, Namespace: namespace, URL: doc.URL, Raw: raw}

	switch config.DeploymentState(doc.Status) {
	case config.StateRunning:
		// already up
	case config.StateInitializing:
		if err := c.waitRunning(ctx, handle); err != nil {
			return nil, nil, errs.Wrap(errs.NotFound, fmt.Sprintf("endpoint %s stuck initializing", name), err)
		}
	default:
		if err := c.Resume(ctx, handle); err != nil {
			return nil, nil, errs.Wrap(errs.NotFound, fmt.Sprintf("resume endpoint %s during adopt", name), err)
		}
	}

	rc := reconstructRuntimeConfig(doc.Env)
	ic := config.InstanceConfig{
		Vendor:       doc.Vendor,
		Region:       doc.Region,
		InstanceType: doc.InstanceType,
	}
	dc := &config.DeploymentConfig{Runtime: rc, Instance: ic, Namespace: namespace}
	return handle, dc, nil
}

func reconstructRuntimeConfig(env map[string]string) config.RuntimeConfig {
	rc := config.RuntimeConfig{ModelID: env["MODEL_ID"], Quantize: env["QUANTIZE"]}
	rc.MaxInputTokens = atoiOr(env["MAX_INPUT_TOKENS"], 0)
	rc.MaxTotalTokens = atoiOr(env["MAX_TOTAL_TOKENS"], 0)
	rc.MaxBatchPrefillTokens = atoiOr(env["MAX_BATCH_PREFILL_TOKENS"], 0)
	rc.NumShard = atoiOr(env["NUM_SHARD"], 1)
	return rc
}

// Resume requests the control plane bring a paused/scaled-down endpoint
// back up, then waits for it to report running.
func (c *Client) Resume(ctx context.Context, handle *Handle) error {
	if _, err := c.doJSON(ctx, http.MethodPost, "/endpoints/"+handle.Name+"/resume", nil, nil); err != nil {
		return errs.Wrap(errs.EndpointError, fmt.Sprintf("resume endpoint %s", handle.Name), err)
	}
	return c.waitRunning(ctx, handle)
}

// Status returns the endpoint's current lifecycle state string, refreshing
// handle's raw descriptor as a side effect.
func (c *Client) Status(ctx context.Context, handle *Handle) (string, error) {
	doc, raw, err := c.get(ctx, handle.Name)
	if err != nil {
		return "", errs.Wrap(errs.EndpointError, fmt.Sprintf("status endpoint %s", handle.Name), err)
	}
	handle.Raw = raw
	return doc.Status, nil
}

// Delete tears down the endpoint, retrying up to deleteMaxRetries times
// with exponential backoff (deleteBackoffMin..deleteBackoffMax), re-raising
// the last error on exhaustion.
func (c *Client) Delete(ctx context.Context, handle *Handle, namespace string) error {
	var lastErr error
	for attempt := 1; attempt <= deleteMaxRetries; attempt++ {
		_, err := c.doJSON(ctx, http.MethodDelete, "/endpoints/"+handle.Name, nil, nil)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Printf("delete endpoint %s attempt %d/%d failed: %v", handle.Name, attempt, deleteMaxRetries, err)
		if attempt == deleteMaxRetries {
			break
		}
		select {
		case <-time.After(deleteBackoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errs.Wrap(errs.DeleteError, fmt.Sprintf("delete endpoint %s after %d attempts", handle.Name, deleteMaxRetries), lastErr)
}

// deleteBackoff computes delay*2^(attempt-1) clamped to
// [deleteBackoffMin, deleteBackoffMax].
func deleteBackoff(attempt int) time.Duration {
	delay := time.Duration(float64(deleteBackoffMin) * math.Pow(2, float64(attempt-1)))
	if delay > deleteBackoffMax {
		delay = deleteBackoffMax
	}
	if delay < deleteBackoffMin {
		delay = deleteBackoffMin
	}
	return delay
}

const readyTimeout = 25 * time.Minute

var readyPollInterval = 10 * time.Second

func (c *Client) waitRunning(ctx context.Context, handle *Handle) error {
	deadline := time.Now().Add(readyTimeout)
	for time.Now().Before(deadline) {
		doc, raw, err := c.get(ctx, handle.Name)
		if err != nil {
			return err
		}
		handle.URL = doc.URL
		handle.Raw = raw
		if config.DeploymentState(doc.Status) == config.StateRunning {
			return nil
		}
		if config.DeploymentState(doc.Status) == config.StateFailed {
			return fmt.Errorf("endpoint %s reported failed state", handle.Name)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPollInterval):
		}
	}
	return fmt.Errorf("endpoint %s not running after %v", handle.Name, readyTimeout)
}

func (c *Client) get(ctx context.Context, name string) (*endpointDoc, json.RawMessage, error) {
	var doc endpointDoc
	raw, err := c.doJSON(ctx, http.MethodGet, "/endpoints/"+name, nil, &doc)
	if err != nil {
		return nil, nil, err
	}
	return &doc, raw, nil
}

// Logs returns the raw recent logs for the named endpoint, used by the
// Scheduler's OOM-detection branch (§4.8). It takes a name rather than a
// *Handle because the scheduler needs to fetch logs after a failed Create,
// when no Handle was ever returned.
func (c *Client) Logs(ctx context.Context, name string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/endpoints/"+name+"/logs", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch bearer token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return req, nil
}

// doJSON performs the request and, when out is non-nil, decodes the
// response body into it. It also returns the raw response body so callers
// can capture the control plane's full descriptor verbatim (e.g. into
// Handle.Raw) rather than just the fields this package's structs know
// about.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("control plane returned %d: %s", resp.StatusCode, msg)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return fallback
	}
	return n
}
