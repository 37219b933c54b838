package model

import "time"

// RunStatus is the lifecycle state of a recorded classification run.
type RunStatus string

// Run lifecycle states.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a persisted record of one classification run.
type Run struct {
	ID        string    `json:"id"`
	Job       Job       `json:"job"`
	Status    RunStatus `json:"status"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
