package model

import "time"

// Execution state constants.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// validTransitions maps each state to the set of states it may transition to.
// States only move forward: a terminal state is never left.
var validTransitions = map[string]map[string]bool{
	StateRunning: {
		StateCompleted: true,
		StateFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one state to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Status is the full view of one execution: its state, the cached output
// events, and the exit code once the run has terminated.
type Status struct {
	ID           string  `json:"id"`
	State        string  `json:"state"`
	CachedEvents []Event `json:"cached_events"`
	ExitCode     *int    `json:"exit_code,omitempty"`
}

// Summary is the list view of an execution.
type Summary struct {
	ID               string `json:"id"`
	State            string `json:"state"`
	CachedEventCount int    `json:"cached_event_count"`
}

// Run is one persisted run-history record. Re-submitting an execution id
// appends a new row; RunID is the unique key. Output is never persisted —
// only the in-memory cache retains it.
type Run struct {
	RunID       string     `json:"run_id"`
	ExecutionID string     `json:"execution_id"`
	State       string     `json:"state"`
	Script      string     `json:"script,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	TimeoutS    int        `json:"timeout_s"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
