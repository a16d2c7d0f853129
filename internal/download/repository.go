package download

import (
	"sync"
	"time"
)

// Repository is the in-memory set of jobs owned by the orchestrator.
// Jobs are inserted at admission and removed a linger period after they
// reach a terminal state, so late status polls still find them.
type Repository struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	timers map[string]*time.Timer
	linger time.Duration
}

// NewRepository creates a Repository
func NewRepository(linger time.Duration) *Repository {
	return &Repository{
		jobs:   make(map[string]*Job),
		timers: make(map[string]*time.Timer),
		linger: linger,
	}
}

// Insert adds a job
func (r *Repository) Insert(j *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID()] = j
}

// Get retrieves a job by ID
func (r *Repository) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// Snapshot returns a copy of the job's record.
func (r *Repository) Snapshot(id string) (Snapshot, bool) {
	j, ok := r.Get(id)
	if !ok {
		return Snapshot{}, false
	}
	return j.Snapshot(), true
}

// Release schedules removal of a finished job after the linger period.
func (r *Repository) Release(id string) {
	if r.linger <= 0 {
		r.Remove(id)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return
	}
	if _, scheduled := r.timers[id]; scheduled {
		return
	}
	r.timers[id] = time.AfterFunc(r.linger, func() { r.Remove(id) })
}

// Remove drops a job immediately
func (r *Repository) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
}

// Len returns the number of tracked jobs
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Active returns the number of jobs not yet in a terminal state.
func (r *Repository) Active() int {
	r.mu.RLock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.RUnlock()

	n := 0
	for _, j := range jobs {
		if !j.State().Terminal() {
			n++
		}
	}
	return n
}

// Close stops pending removal timers
func (r *Repository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}
