package recommend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecommendReturnsNilNilOnInfeasible(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"model does not fit on requested GPU memory"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	rc, err := c.Recommend(context.Background(), "meta-llama/big-model", 24, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc != nil {
		t.Errorf("expected nil config on infeasible response, got %+v", rc)
	}
}

func TestRecommendDecodesSuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("model_id") != "meta-llama/small-model" {
			t.Errorf("unexpected model_id query param: %q", q.Get("model_id"))
		}
		if q.Get("gpu_memory") != "24" || q.Get("num_gpus") != "1" {
			t.Errorf("unexpected gpu_memory/num_gpus params: %+v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"config":{"model_id":"meta-llama/small-model","max_batch_prefill_tokens":4096,"max_input_tokens":2048,"max_total_tokens":4096,"num_shard":1,"quantize":"bitsandbytes-nf4","estimated_memory_in_gigabytes":18}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	rc, err := c.Recommend(context.Background(), "meta-llama/small-model", 24, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc == nil {
		t.Fatal("expected non-nil config")
	}
	if rc.Quantize != "bitsandbytes-nf4" || rc.MaxTotalTokens != 4096 || rc.NumShard != 1 {
		t.Errorf("unexpected decoded config: %+v", rc)
	}
	if rc.EstimatedMemoryInGigabytes == nil || *rc.EstimatedMemoryInGigabytes != 18 {
		t.Errorf("expected estimated memory 18, got %+v", rc.EstimatedMemoryInGigabytes)
	}
}

func TestRecommendPropagatesTransportErrors(t *testing.T) {
	c := New("http://127.0.0.1:0")
	_, err := c.Recommend(context.Background(), "model", 24, 1)
	if err == nil {
		t.Fatal("expected transport error for unreachable server")
	}
}
