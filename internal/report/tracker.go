package report

import (
	"sync"
	"time"
)

// Tracker holds the current or most recent run for the debug API. It is
// safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	run     Run
	started bool
	running bool
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Start resets the tracker for a new run.
func (t *Tracker) Start(runID string, companies []string, startedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run = Run{
		RunID:        runID,
		RunStartedAt: startedAt.UTC(),
		Companies:    append([]string(nil), companies...),
	}
	t.started, t.running = true, true
}

// Record adds or replaces a company result.
func (t *Tracker) Record(res CompanyResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.run.Results {
		if t.run.Results[i].Company == res.Company {
			t.run.Results[i] = res
			return
		}
	}
	t.run.Results = append(t.run.Results, res)
}

// Finish stores the final report.
func (t *Tracker) Finish(r Run) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.run = r
	t.started, t.running = true, false
}

// Snapshot returns a copy of the tracked run, whether any run has started,
// and whether it is still in progress.
func (t *Tracker) Snapshot() (r Run, ok, running bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r = t.run
	r.Companies = append([]string(nil), t.run.Companies...)
	r.Results = append([]CompanyResult(nil), t.run.Results...)
	return r, t.started, t.running
}
