package shiny

import "time"

// State is the coarse lifecycle state reported to the UI.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateError    State = "error"
)

// Stage is a step of one start attempt.
type Stage int

const (
	StageAllocatingPort Stage = iota
	StageSpawning
	StageAwaitingReadiness
	StageSucceeded
	StageAttemptFailed
	StageFailed
)

// String returns the string representation of the stage
func (s Stage) String() string {
	switch s {
	case StageAllocatingPort:
		return "allocating-port"
	case StageSpawning:
		return "spawning"
	case StageAwaitingReadiness:
		return "awaiting-readiness"
	case StageSucceeded:
		return "succeeded"
	case StageAttemptFailed:
		return "attempt-failed"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the supervisor.
type Status struct {
	State     State     `json:"state"`
	Stage     string    `json:"stage,omitempty"`
	URL       string    `json:"url,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Port      int       `json:"port,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
