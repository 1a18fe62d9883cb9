// Package scheduler is the coordination core: quota-aware admission and
// lifecycle coordination over concurrent scenario groups. The main loop
// runs on a single goroutine; blocking endpoint/benchmark work is
// dispatched to worker goroutines, and completions fan back in over one
// results channel — the loop's only synchronization point. No locks guard
// pending/running/results/quota; they are only ever touched on the event
// loop goroutine or handed off through the channel.
package scheduler

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loadbench/loadbench/internal/config"
	"github.com/loadbench/loadbench/internal/endpoint"
	"github.com/loadbench/loadbench/internal/gpumetrics"
	"github.com/loadbench/loadbench/internal/result"
	"github.com/loadbench/loadbench/internal/scenario"
)

// pollInterval is how long the event loop waits for a batch of
// completions before re-checking admission. A var so tests can shorten it.
var pollInterval = 10 * time.Second

// teardownDelay is how long the worker waits before deleting an endpoint
// it brought up, per §4.8 step 5.
var teardownDelay = 5 * time.Second

// oomWaitDelay is how long the worker waits before fetching endpoint logs
// after a creation failure, per §4.8 step 4.
var oomWaitDelay = 60 * time.Second

const oomMarker = "OutOfMemoryError"

// EndpointDriver is the subset of internal/endpoint.Client the Scheduler
// needs to bring deployments up and tear them down.
type EndpointDriver interface {
	Create(ctx context.Context, cfg config.DeploymentConfig, name string) (*endpoint.Handle, error)
	Resume(ctx context.Context, handle *endpoint.Handle) error
	Delete(ctx context.Context, handle *endpoint.Handle, namespace string) error
	Status(ctx context.Context, handle *endpoint.Handle) (string, error)
	Logs(ctx context.Context, name string) (string, error)
}

// Task pairs a ScenarioGroup with the Runner its scenarios execute
// through.
type Task struct {
	Group  *scenario.Group
	Runner scenario.Runner
}

// Scheduler coordinates admission and execution of Tasks against a
// namespace's quota.
type Scheduler struct {
	driver    EndpointDriver
	quota     QuotaFetcher
	namespace string

	sampleGPUMetrics bool
}

// New returns a Scheduler driving endpoints through driver and reading
// quota through quotaFetcher, both scoped to namespace.
func New(driver EndpointDriver, quotaFetcher QuotaFetcher, namespace string) *Scheduler {
	return &Scheduler{driver: driver, quota: quotaFetcher, namespace: namespace}
}

// EnableGPUMetrics turns on the optional per-group GPU metrics sampler
// (§4.10). Disabled by default.
func (s *Scheduler) EnableGPUMetrics(enable bool) {
	s.sampleGPUMetrics = enable
}

// completion is what a worker goroutine posts back to the event loop: the
// finished group result, plus enough of its instance shape to release the
// accelerators it reserved.
type completion struct {
	groupResult  result.ScenarioGroupResult
	vendor       string
	instanceType string
	numGPUs      int
}

// Run admits and executes tasks to completion, returning one
// ScenarioGroupResult per task. It implements the main loop described in
// §4.8: admission predicate, worker dispatch, single-channel fan-in, no
// locks on scheduler state.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) ([]result.ScenarioGroupResult, error) {
	quota, err := s.quota.FetchQuota(ctx, s.namespace)
	if err != nil {
		return nil, err
	}

	pending := append([]Task(nil), tasks...)
	running := 0
	// reserved tracks accelerators committed to in-flight tasks this tick
	// that the freshly-fetched quota may not yet reflect — without it, two
	// groups that together exceed quota but individually fit could both be
	// admitted in the same pass before either's usage is externally
	// visible. Touched only on this goroutine.
	reserved := map[string]int{}
	resultsCh := make(chan completion)
	g, gctx := errgroup.WithContext(ctx)

	var results []result.ScenarioGroupResult

	for len(pending) > 0 || running > 0 {
		var stillPending []Task
		for _, t := range pending {
			inst := t.Group.Deployment.Config.Instance
			if s.admit(t, quota, reserved) {
				running++
				reserved[quotaKey(inst.Vendor, inst.InstanceType)] += inst.NumGPUs
				task := t
				g.Go(func() error {
					r := s.deployAndBenchmark(gctx, task)
					c := completion{groupResult: r, vendor: inst.Vendor, instanceType: inst.InstanceType, numGPUs: inst.NumGPUs}
					select {
					case resultsCh <- c:
					case <-ctx.Done():
					}
					return nil
				})
			} else {
				stillPending = append(stillPending, t)
			}
		}
		pending = stillPending

		select {
		case c := <-resultsCh:
			results = append(results, c.groupResult)
			running--
			reserved[quotaKey(c.vendor, c.instanceType)] -= c.numGPUs
			results, running = drainReady(resultsCh, results, reserved, running)
		case <-time.After(pollInterval):
		case <-ctx.Done():
			_ = g.Wait()
			return results, ctx.Err()
		}

		quota, err = s.quota.FetchQuota(ctx, s.namespace)
		if err != nil {
			log.Printf("scheduler: refresh quota for %s failed, keeping stale quota: %v", s.namespace, err)
		}
	}

	_ = g.Wait()
	return results, nil
}

func quotaKey(vendor, instanceType string) string { return vendor + "|" + instanceType }

// drainReady non-blockingly drains any further completions already
// waiting on resultsCh, so a burst of simultaneous finishers doesn't each
// require their own loop iteration.
func drainReady(resultsCh chan completion, results []result.ScenarioGroupResult, reserved map[string]int, running int) ([]result.ScenarioGroupResult, int) {
	for {
		select {
		case c := <-resultsCh:
			results = append(results, c.groupResult)
			running--
			reserved[quotaKey(c.vendor, c.instanceType)] -= c.numGPUs
		default:
			return results, running
		}
	}
}

// admit implements the admission predicate: a deployment already running
// is always admitted; otherwise admission depends on quota headroom for
// (vendor, instance_type, num_gpus), net of accelerators already reserved
// by tasks dispatched earlier this tick.
func (s *Scheduler) admit(t Task, quota *Quota, reserved map[string]int) bool {
	dep := t.Group.Deployment
	if dep.Exists && dep.State == config.StateRunning {
		return true
	}
	inst := dep.Config.Instance
	available := quota.Available(inst.Vendor, inst.InstanceType) - reserved[quotaKey(inst.Vendor, inst.InstanceType)]
	return available >= inst.NumGPUs
}

// deployAndBenchmark is the per-group worker task: bring the endpoint up,
// run the group's scenarios, tear down, and always return a result.
func (s *Scheduler) deployAndBenchmark(ctx context.Context, t Task) result.ScenarioGroupResult {
	dep := t.Group.Deployment
	status := result.DeploymentStatus{Status: "failed"}
	var groupResult *result.ScenarioGroupResult

	handle, err := s.bringUp(ctx, dep)
	if err != nil {
		errMsg := err.Error()
		status.Error = &errMsg

		time.Sleep(oomWaitDelay)
		if logs, logErr := s.driver.Logs(ctx, dep.DeploymentID); logErr == nil && strings.Contains(logs, oomMarker) {
			status.OOM = true
		}
	} else {
		dep.EndpointRef = handle
		dep.State = config.StateRunning

		var sampler *gpumetrics.Scraper
		if s.sampleGPUMetrics {
			sampler = gpumetrics.New(handle.Host(), float64(dep.Config.Instance.TotalGPUMemoryGB()))
			sampler.Start(ctx)
		}

		gr, runErr := t.Group.Run(ctx, t.Runner)
		groupResult = gr
		if runErr != nil {
			errMsg := runErr.Error()
			status.Error = &errMsg
		} else {
			status.Status = "success"
		}

		if sampler != nil {
			if sample := sampler.Stop(); sample != nil {
				peakUtil, peakMem := sample.UtilizationPeakPct, sample.MemoryPeakGiB
				status.PeakGPUUtilizationPct = &peakUtil
				status.PeakGPUMemoryGiB = &peakMem
			}
		}
	}

	if dep.State == config.StateRunning && dep.TeardownOnExit && handle != nil {
		time.Sleep(teardownDelay)
		if delErr := s.driver.Delete(ctx, handle, t.Group.Deployment.Config.Namespace); delErr != nil {
			appendErr(&status, delErr.Error())
		}
		dep.State = config.StateDeleted
	}

	if groupResult == nil {
		groupResult = &result.ScenarioGroupResult{
			DeploymentID:    dep.DeploymentID,
			ScenarioResults: []result.ScenarioResult{},
			DeploymentDetails: result.DeploymentDetails{
				Runtime:  dep.Config.Runtime,
				Instance: dep.Config.Instance,
			},
		}
	}
	groupResult.DeploymentStatus = status
	return *groupResult
}

func appendErr(status *result.DeploymentStatus, msg string) {
	if status.Error == nil {
		status.Error = &msg
		return
	}
	combined := *status.Error + "; " + msg
	status.Error = &combined
}

// bringUp creates the endpoint if absent, resumes it if present but not
// running, or no-ops if already running.
func (s *Scheduler) bringUp(ctx context.Context, dep *config.Deployment) (*endpoint.Handle, error) {
	if !dep.Exists {
		return s.driver.Create(ctx, dep.Config, dep.DeploymentID)
	}
	if h, ok := dep.EndpointRef.(*endpoint.Handle); ok {
		if dep.State != config.StateRunning {
			if err := s.driver.Resume(ctx, h); err != nil {
				return nil, err
			}
		}
		return h, nil
	}
	return s.driver.Create(ctx, dep.Config, dep.DeploymentID)
}
