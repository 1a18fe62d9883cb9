package gpumetrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParsePrometheusMetricsExtractsKnownGauges(t *testing.T) {
	body := "# HELP vllm:gpu_cache_usage_perc GPU cache usage\n" +
		"# TYPE vllm:gpu_cache_usage_perc gauge\n" +
		"vllm:gpu_cache_usage_perc{model=\"m\"} 0.42\n" +
		"vllm:num_requests_waiting{model=\"m\"} 3\n"

	util, waiting := parsePrometheusMetrics(strings.NewReader(body))
	if util != 0.42 {
		t.Errorf("expected utilization 0.42, got %v", util)
	}
	if waiting != 3 {
		t.Errorf("expected waiting 3, got %v", waiting)
	}
}

func TestParsePrometheusMetricsReturnsNegativeOneWhenAbsent(t *testing.T) {
	util, waiting := parsePrometheusMetrics(strings.NewReader("some_other_metric 1\n"))
	if util != -1 || waiting != -1 {
		t.Errorf("expected -1, -1 for absent metrics, got %v, %v", util, waiting)
	}
}

func TestScraperStopAggregatesPeakAndAverage(t *testing.T) {
	origInterval := scrapeInterval
	scrapeInterval = 2 * time.Millisecond
	defer func() { scrapeInterval = origInterval }()

	samples := []string{
		"vllm:gpu_cache_usage_perc 0.2\nvllm:num_requests_waiting 1\n",
		"vllm:gpu_cache_usage_perc 0.8\nvllm:num_requests_waiting 4\n",
	}
	i := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := i
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		w.Write([]byte(samples[idx]))
		i++
	}))
	defer srv.Close()

	s := New(srv.URL, 80)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	sample := s.Stop()

	if sample == nil {
		t.Fatal("expected a non-nil sample")
	}
	if sample.UtilizationPeakPct < sample.UtilizationAvgPct {
		t.Errorf("expected peak >= avg, got peak=%v avg=%v", sample.UtilizationPeakPct, sample.UtilizationAvgPct)
	}
	if sample.MemoryPeakGiB <= 0 {
		t.Errorf("expected positive peak memory, got %v", sample.MemoryPeakGiB)
	}
}

func TestScraperStopReturnsNilWhenNeverScraped(t *testing.T) {
	s := New("http://127.0.0.1:0", 80)
	_, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	close(s.done)

	if got := s.Stop(); got != nil {
		t.Errorf("expected nil sample when no scrape ever succeeded, got %+v", got)
	}
}
