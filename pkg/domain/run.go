package domain

import "time"

// RunState tracks the lifecycle of one plan execution.
// Pending -> Running -> {Completed, Aborted, Cancelled}. Terminal states are
// final; resuming a partial run is not supported.
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunAborted   RunState = "aborted"
	RunCancelled RunState = "cancelled"
)

// Terminal reports whether the state is final.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunAborted || s == RunCancelled
}

// RunResult captures the outcome of executing a Plan: the terminal state,
// every sample delivered to the sink (in iteration order), and the error
// that ended the run early, if any.
type RunResult struct {
	ID       string            `json:"id"`
	Plan     string            `json:"plan"`
	State    RunState          `json:"state"`
	Samples  []Sample          `json:"samples"`
	Err      string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
