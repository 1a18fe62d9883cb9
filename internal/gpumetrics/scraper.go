// Package gpumetrics optionally samples an inference endpoint's vLLM
// Prometheus metrics during a scenario group run, feeding peak GPU
// utilization and memory into a deployment's result as the enrichment
// fields described in SPEC_FULL.md §4.10. It never blocks or fails a
// benchmark run: a scrape error is logged and simply contributes no
// sample.
package gpumetrics

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const scrapeTimeout = 3 * time.Second

// scrapeInterval is a var, not a const, so tests can shorten it.
var scrapeInterval = 5 * time.Second

// Sample is the aggregated peak/average metrics collected over a Scraper's
// lifetime.
type Sample struct {
	UtilizationPeakPct float64
	UtilizationAvgPct  float64
	MemoryPeakGiB      float64
	WaitingRequestsMax int
}

// Scraper periodically polls an endpoint's /metrics route for vLLM's GPU
// cache utilization and request-queue-depth gauges.
type Scraper struct {
	metricsURL     string
	totalMemoryGiB float64
	client         *http.Client

	mu                sync.Mutex
	utilizationSample []float64
	waitingSamples    []int
	cancel            context.CancelFunc
	done              chan struct{}
}

// New targets host's /metrics endpoint. totalMemoryGiB is the instance's
// total GPU memory, used to derive peak memory from cache utilization.
func New(host string, totalMemoryGiB float64) *Scraper {
	return &Scraper{
		metricsURL:     strings.TrimRight(host, "/") + "/metrics",
		totalMemoryGiB: totalMemoryGiB,
		client:         &http.Client{Timeout: scrapeTimeout},
		done:           make(chan struct{}),
	}
}

// Start begins scraping in a background goroutine. Safe to call only once.
func (s *Scraper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop halts scraping and returns the aggregated sample, or nil if nothing
// was ever successfully scraped.
func (s *Scraper) Stop() *Sample {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.utilizationSample) == 0 {
		return nil
	}

	var sum, peak float64
	for _, v := range s.utilizationSample {
		sum += v
		if v > peak {
			peak = v
		}
	}
	avg := sum / float64(len(s.utilizationSample))

	var maxWaiting int
	for _, w := range s.waitingSamples {
		if w > maxWaiting {
			maxWaiting = w
		}
	}

	return &Sample{
		UtilizationPeakPct: peak * 100,
		UtilizationAvgPct:  avg * 100,
		MemoryPeakGiB:      peak * s.totalMemoryGiB,
		WaitingRequestsMax: maxWaiting,
	}
}

func (s *Scraper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(scrapeInterval)
	defer ticker.Stop()

	s.scrape(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scrape(ctx)
		}
	}
}

func (s *Scraper) scrape(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.metricsURL, nil)
	if err != nil {
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("gpumetrics: scrape %s failed: %v", s.metricsURL, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return
	}

	utilization, waiting := parsePrometheusMetrics(resp.Body)

	s.mu.Lock()
	defer s.mu.Unlock()
	if utilization >= 0 {
		s.utilizationSample = append(s.utilizationSample, utilization)
	}
	if waiting >= 0 {
		s.waitingSamples = append(s.waitingSamples, waiting)
	}
}

// parsePrometheusMetrics extracts vllm:gpu_cache_usage_perc and
// vllm:num_requests_waiting from a Prometheus text-format body. Returns -1
// for a metric not found in the scrape.
func parsePrometheusMetrics(r io.Reader) (utilization float64, waiting int) {
	utilization, waiting = -1, -1

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "vllm:gpu_cache_usage_perc"):
			if v, err := parsePromValue(line); err == nil {
				utilization = v
			}
		case strings.HasPrefix(line, "vllm:num_requests_waiting"):
			if v, err := parsePromValue(line); err == nil {
				waiting = int(v)
			}
		}
	}
	return utilization, waiting
}

// parsePromValue extracts the value field from a Prometheus text line:
// "metric_name{labels} value [timestamp]" or "metric_name value".
func parsePromValue(line string) (float64, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, fmt.Errorf("too few fields in metric line %q", line)
	}
	return strconv.ParseFloat(fields[len(fields)-1], 64)
}
