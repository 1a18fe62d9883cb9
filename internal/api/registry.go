package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loadbench/loadbench/internal/result"
)

// RunRecord is the in-memory record of one benchmark run submitted through
// the server. There is no database: a process restart loses run history,
// same as the Scheduler itself loses in-flight state on restart.
type RunRecord struct {
	ID          string                       `json:"id"`
	Status      string                       `json:"status"` // pending, running, succeeded, failed
	Error       string                       `json:"error,omitempty"`
	StartedAt   *time.Time                   `json:"started_at,omitempty"`
	CompletedAt *time.Time                   `json:"completed_at,omitempty"`
	Groups      []result.ScenarioGroupResult `json:"groups,omitempty"`
}

// Registry tracks RunRecords in memory, guarded by a single mutex. It is
// the monitoring server's entire notion of "the database".
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*RunRecord)}
}

// Create allocates a new pending RunRecord and returns it.
func (r *Registry) Create() *RunRecord {
	rec := &RunRecord{ID: uuid.NewString(), Status: "pending"}
	r.mu.Lock()
	r.runs[rec.ID] = rec
	r.mu.Unlock()
	return rec
}

// MarkRunning transitions id from pending to running.
func (r *Registry) MarkRunning(id string) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.runs[id]; ok {
		rec.Status = "running"
		rec.StartedAt = &now
	}
}

// Complete records id's terminal state: succeeded if err is nil, failed
// otherwise.
func (r *Registry) Complete(id string, groups []result.ScenarioGroupResult, err error) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.runs[id]
	if !ok {
		return
	}
	rec.Groups = groups
	rec.CompletedAt = &now
	if err != nil {
		rec.Status = "failed"
		rec.Error = err.Error()
		return
	}
	rec.Status = "succeeded"
}

// Get returns the RunRecord for id, or false if unknown.
func (r *Registry) Get(id string) (RunRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.runs[id]
	if !ok {
		return RunRecord{}, false
	}
	return *rec, true
}

// List returns every tracked RunRecord, most recently created first is not
// guaranteed — callers sort if order matters.
func (r *Registry) List() []RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RunRecord, 0, len(r.runs))
	for _, rec := range r.runs {
		out = append(out, *rec)
	}
	return out
}
