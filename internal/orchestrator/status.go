package orchestrator

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of the run for the status endpoint.
type Snapshot struct {
	RunID       string    `json:"run_id"`
	Branch      string    `json:"branch,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	Running     bool      `json:"running"`
	Waiting     bool      `json:"waiting"`
	Current     *Current  `json:"current,omitempty"`
	LastOutcome Outcome   `json:"last_outcome,omitempty"`
	LastTaskID  string    `json:"last_task_id,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Summary     Summary   `json:"summary"`
}

// Current describes the iteration in flight.
type Current struct {
	IterationID string    `json:"iteration_id"`
	Number      int       `json:"number"`
	TaskID      string    `json:"task_id,omitempty"`
	TaskTitle   string    `json:"task_title,omitempty"`
	State       State     `json:"state"`
	StartedAt   time.Time `json:"started_at"`
}

// Board holds the latest Snapshot. It is written by the workflow goroutine
// and read by the status server; a nil *Board discards updates.
type Board struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewBoard creates a Board for the run runID.
func NewBoard(runID, branch string, now time.Time) *Board {
	return &Board{snap: Snapshot{RunID: runID, Branch: branch, StartedAt: now}}
}

// Snapshot returns a copy of the current snapshot.
func (b *Board) Snapshot() Snapshot {
	if b == nil {
		return Snapshot{}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.snap
	if s.Current != nil {
		c := *s.Current
		s.Current = &c
	}
	return s
}

func (b *Board) update(fn func(*Snapshot)) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.snap)
}

func (b *Board) iteration(it *Iteration) {
	b.update(func(s *Snapshot) {
		s.Running = true
		s.Waiting = false
		s.Current = &Current{
			IterationID: it.ID,
			Number:      it.Number,
			TaskID:      it.Task.ID,
			TaskTitle:   it.Task.Title,
			State:       it.State,
			StartedAt:   it.StartedAt,
		}
	})
}

func (b *Board) finished(res Result) {
	b.update(func(s *Snapshot) {
		s.Current = nil
		s.LastOutcome = res.Outcome
		s.LastTaskID = res.TaskID
		s.LastError = ""
		if res.Err != nil {
			s.LastError = res.Err.Error()
		}
	})
}

func (b *Board) waiting(w bool) {
	b.update(func(s *Snapshot) { s.Waiting = w })
}

func (b *Board) summary(sum Summary, running bool) {
	b.update(func(s *Snapshot) {
		s.Summary = sum
		s.Running = running
	})
}
