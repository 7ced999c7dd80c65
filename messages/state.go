package messages

import (
	"sync"
	"time"
)

// State is the send status of one saved message (or the quick-send slot).
type State string

const (
	StateIdle    State = "IDLE"
	StateSending State = "SENDING"
	StateSuccess State = "SUCCESS"
	StateError   State = "ERROR"
)

// QuickSlot is the tracker key for the ad-hoc quick-send field.
const QuickSlot int64 = -1

// successHold is how long SUCCESS is displayed before reverting to IDLE.
const successHold = 2 * time.Second

// Status pairs a state with its error detail (set only for ERROR).
type Status struct {
	State  State  `json:"state"`
	Detail string `json:"detail,omitempty"`
}

type trackerEntry struct {
	status Status
	gen    uint64
}

// StatusTracker holds per-message send states. SUCCESS automatically reverts
// to IDLE after a short hold unless a newer transition supersedes it; ERROR
// sticks until the next send attempt on the same message.
type StatusTracker struct {
	mu      sync.Mutex
	entries map[int64]*trackerEntry
	hold    time.Duration
	gen     uint64
}

// NewStatusTracker returns a tracker with the standard success hold.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		entries: make(map[int64]*trackerEntry),
		hold:    successHold,
	}
}

// Get returns the current status for a key; unknown keys are IDLE.
func (t *StatusTracker) Get(id int64) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		return e.status
	}
	return Status{State: StateIdle}
}

// Snapshot returns every non-idle status keyed by message id.
func (t *StatusTracker) Snapshot() map[int64]Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int64]Status, len(t.entries))
	for id, e := range t.entries {
		if e.status.State != StateIdle {
			out[id] = e.status
		}
	}
	return out
}

// MarkSending moves a key to SENDING, clearing any stale error.
func (t *StatusTracker) MarkSending(id int64) {
	t.set(id, Status{State: StateSending})
}

// MarkError moves a key to ERROR with the given detail. The state is sticky.
func (t *StatusTracker) MarkError(id int64, detail string) {
	t.set(id, Status{State: StateError, Detail: detail})
}

// MarkSuccess moves a key to SUCCESS and schedules the revert to IDLE. A
// transition made during the hold supersedes the revert: the generation
// recorded here no longer matches, and the timer does nothing.
func (t *StatusTracker) MarkSuccess(id int64) {
	gen := t.set(id, Status{State: StateSuccess})
	time.AfterFunc(t.hold, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		e, ok := t.entries[id]
		if !ok || e.gen != gen || e.status.State != StateSuccess {
			return
		}
		delete(t.entries, id)
	})
}

// Clear drops a key back to IDLE immediately.
func (t *StatusTracker) Clear(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

func (t *StatusTracker) set(id int64, st Status) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.entries[id] = &trackerEntry{status: st, gen: t.gen}
	return t.gen
}
