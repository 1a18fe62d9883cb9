package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchQuotaDecodesNestedVendorsShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"vendors":[
			{"name":"aws","quotas":[
				{"instanceType":"p4d.24xlarge","maxAccelerators":8,"usedAccelerators":0},
				{"instanceType":"g5.xlarge","maxAccelerators":16,"usedAccelerators":4}
			]},
			{"name":"gcp","quotas":[
				{"instanceType":"a2-highgpu-1g","maxAccelerators":4,"usedAccelerators":4}
			]}
		]}`))
	}))
	defer srv.Close()

	q, err := NewHTTPQuotaFetcher(srv.URL).FetchQuota(context.Background(), "team-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := q.Available("aws", "p4d.24xlarge"); got != 8 {
		t.Errorf("aws/p4d.24xlarge available = %d, want 8", got)
	}
	if got := q.Available("aws", "g5.xlarge"); got != 12 {
		t.Errorf("aws/g5.xlarge available = %d, want 12", got)
	}
	if got := q.Available("gcp", "a2-highgpu-1g"); got != 0 {
		t.Errorf("gcp/a2-highgpu-1g available = %d, want 0", got)
	}
	if got := q.Available("aws", "unknown-type"); got != 0 {
		t.Errorf("unknown instance type available = %d, want 0", got)
	}
}

func TestFetchQuotaErrorsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewHTTPQuotaFetcher(srv.URL).FetchQuota(context.Background(), "team-a"); err == nil {
		t.Fatal("expected an error on a 500 response")
	}
}
