// Package progress keeps short-lived progress snapshots of running liveness
// checks so that another goroutine (a CLI spinner, a status endpoint) can
// poll them by ID.
package progress

import (
	"sync"
	"time"

	"github.com/nao1215/onionwatch/internal/model"
)

// DefaultTTL is how long a run's progress stays readable after its last update.
const DefaultTTL = time.Hour

// AliveEntry describes a target found alive during a run.
type AliveEntry struct {
	ID           int64     `json:"id"`
	URL          string    `json:"url"`
	StatusCode   int       `json:"status_code"`
	ResponseTime float64   `json:"response_time"`
	LastChecked  time.Time `json:"last_checked"`
}

// Snapshot is a copy of a run's progress.
type Snapshot struct {
	Total    int          `json:"total"`
	Checked  int          `json:"checked"`
	Alive    []AliveEntry `json:"alive_links"`
	Complete bool         `json:"complete"`
}

// AliveCount returns the number of alive entries.
func (s Snapshot) AliveCount() int {
	return len(s.Alive)
}

// Percent returns checked/total as an integer percentage, truncated.
// A run with no targets reports 0.
func (s Snapshot) Percent() int {
	if s.Total <= 0 {
		return 0
	}
	return s.Checked * 100 / s.Total
}

type entry struct {
	snap    Snapshot
	expires time.Time
}

// Tracker stores progress per run ID. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*entry
}

// NewTracker returns a Tracker whose entries expire ttl after their last
// update. A non-positive ttl uses DefaultTTL.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Begin starts tracking run id with total targets, replacing any previous
// progress under the same id.
func (t *Tracker) Begin(id string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictLocked()
	t.entries[id] = &entry{
		snap:    Snapshot{Total: total, Alive: []AliveEntry{}},
		expires: t.now().Add(t.ttl),
	}
}

// Observe counts one checked record. Alive records are appended to the alive
// list. Observations after Finish, or beyond Total, are ignored so that the
// counters never move backwards or overshoot.
func (t *Tracker) Observe(id string, record model.LivenessRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.liveLocked(id)
	if !ok || e.snap.Complete || e.snap.Checked >= e.snap.Total {
		return
	}
	e.snap.Checked++
	if record.IsAlive() {
		e.snap.Alive = append(e.snap.Alive, AliveEntry{
			ID:           record.TargetID,
			URL:          record.URL,
			StatusCode:   record.StatusCode,
			ResponseTime: record.ResponseTimeSeconds(),
			LastChecked:  record.CheckedAt,
		})
	}
	e.expires = t.now().Add(t.ttl)
}

// Finish marks run id complete.
func (t *Tracker) Finish(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.liveLocked(id); ok {
		e.snap.Complete = true
		e.expires = t.now().Add(t.ttl)
	}
}

// Get returns a copy of run id's progress. The second result is false when
// the id is unknown or has expired.
func (t *Tracker) Get(id string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.liveLocked(id)
	if !ok {
		return Snapshot{}, false
	}
	snap := e.snap
	snap.Alive = append([]AliveEntry(nil), e.snap.Alive...)
	return snap, true
}

// Callback adapts Observe to the progress callback taken by
// liveness.Checker.CheckBulk.
func (t *Tracker) Callback(id string) func(model.LivenessRecord) {
	return func(record model.LivenessRecord) {
		t.Observe(id, record)
	}
}

func (t *Tracker) liveLocked(id string) (*entry, bool) {
	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	if !t.now().Before(e.expires) {
		delete(t.entries, id)
		return nil, false
	}
	return e, true
}

func (t *Tracker) evictLocked() {
	now := t.now()
	for id, e := range t.entries {
		if !now.Before(e.expires) {
			delete(t.entries, id)
		}
	}
}
