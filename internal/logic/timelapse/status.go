package timelapse

import (
	"sync"
	"time"

	"github.com/cjeanneret/LapseGo/internal/logic/window"
)

// State is the controller's position within a day.
type State string

const (
	StateIdle            State = "idle"
	StateWaitingForStart State = "waiting_for_start"
	StateCapturing       State = "capturing"
	StateDone            State = "done"
	StateRollover        State = "rollover"
)

// Status is a point-in-time snapshot of the run, served by the web UI.
type Status struct {
	RunID     string           `json:"run_id"`
	Project   string           `json:"project,omitempty"`
	Day       int              `json:"day"`
	TotalDays int              `json:"total_days"`
	State     State            `json:"state"`
	Window    window.DayWindow `json:"window"`
	Sequence  int              `json:"sequence"`
	Captures  int              `json:"captures"`
	Failures  int              `json:"failures"`
	LastFile  string           `json:"last_file,omitempty"`
	LastError string           `json:"last_error,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Tracker holds the live Status. The control loop writes it, readers take
// snapshots. A nil *Tracker ignores every call.
type Tracker struct {
	mu        sync.RWMutex
	status    Status
	listeners []func(Status)
}

func NewTracker(runID, project string) *Tracker {
	return &Tracker{status: Status{RunID: runID, Project: project, State: StateIdle}}
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	if t == nil {
		return Status{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// OnChange registers fn to be called with every new status.
// Listeners run on the control goroutine and must not block.
func (t *Tracker) OnChange(fn func(Status)) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

func (t *Tracker) update(now time.Time, fn func(*Status)) {
	if t == nil {
		return
	}
	t.mu.Lock()
	fn(&t.status)
	t.status.UpdatedAt = now
	snap := t.status
	listeners := append([]func(Status){}, t.listeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}
