package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// DefaultRetention is how long ledger entries are kept after their
// scheduled time.
const DefaultRetention = 7 * 24 * time.Hour

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines backend
//   - "sqlite": SQLite database file (build tag sqlite)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Retention   time.Duration // 0 means DefaultRetention
}

func (c Config) retention() time.Duration {
	if c.Retention <= 0 {
		return DefaultRetention
	}
	return c.Retention
}

// FiredJob marks a job as fired. JobID is stable for the same script and
// moments, so it survives restarts.
type FiredJob struct {
	JobID       string    `json:"job_id"`
	Session     string    `json:"session"`
	Kind        string    `json:"kind"`
	Description string    `json:"description,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	FiredAt     time.Time `json:"fired_at"`
}

// RunRecord is one completed action invocation.
type RunRecord struct {
	JobID       string        `json:"job_id"`
	Session     string        `json:"session"`
	Kind        string        `json:"kind"`
	Description string        `json:"description,omitempty"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

func (r RunRecord) OK() bool { return r.Error == "" }
