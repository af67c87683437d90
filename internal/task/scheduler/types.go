package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sew/internal/script"
	"sew/internal/storage"
)

var ErrStopped = errors.New("scheduler stopped")

// MissedPolicy decides what Load does with a job whose time already passed.
type MissedPolicy string

const (
	MissedDrop MissedPolicy = "drop"
	MissedFire MissedPolicy = "fire"
)

// DefaultMissedGrace is how late a job may be at load time and still fire.
const DefaultMissedGrace = time.Second

func ParseMissedPolicy(raw string) (MissedPolicy, error) {
	switch p := MissedPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return MissedDrop, nil
	case MissedDrop, MissedFire:
		return p, nil
	default:
		return "", fmt.Errorf("missed policy must be drop or fire, got %q", raw)
	}
}

// Config controls the scheduler.
type Config struct {
	Timezone     string // IANA zone used for status logs and the status cron; "" means local
	MissedPolicy MissedPolicy
	// MissedGrace lets a job that is at most this late still fire under
	// MissedDrop. A negative value disables the grace period.
	MissedGrace time.Duration
	// StatusEvery is a ParseSchedule string; "" disables the status report.
	StatusEvery string
	// JobTimeout bounds one action invocation. 0 uses the engine default.
	JobTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MissedPolicy == "" {
		c.MissedPolicy = MissedDrop
	}
	if c.MissedGrace == 0 {
		c.MissedGrace = DefaultMissedGrace
	}
	if c.MissedGrace < 0 {
		c.MissedGrace = 0
	}
	return c
}

// State is the scheduler-level state.
type State int

const (
	Idle State = iota
	Loaded
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// JobState is the lifecycle state of one job.
type JobState int

const (
	Pending JobState = iota
	Fired
	Completed
	Cancelled
	// Missed jobs were already late at load time and dropped.
	Missed
	// AlreadyFired jobs were skipped at load time because they fired before,
	// in this process or in a previous one recorded by the ledger.
	AlreadyFired
)

func (s JobState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fired:
		return "fired"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Missed:
		return "missed"
	case AlreadyFired:
		return "already_fired"
	default:
		return fmt.Sprintf("job_state(%d)", int(s))
	}
}

// Invoker runs the action bound to a command. *actions.Registry satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, jobID string, cmd script.Command) error
}

// Ledger persists fired jobs. storage.Store satisfies it.
type Ledger interface {
	MarkFired(ctx context.Context, j storage.FiredJob) error
	WasFired(ctx context.Context, jobID string) (bool, error)
	AppendRun(ctx context.Context, r storage.RunRecord) error
}

// JobStatus is a point-in-time view of one job.
type JobStatus struct {
	ID          string
	Kind        script.Kind
	Description string
	At          time.Time
	State       JobState
	FiredAt     time.Time
	Took        time.Duration
	Error       string
}

// Snapshot is a point-in-time view of the scheduler.
type Snapshot struct {
	State      State
	Session    string
	Generation uint64
	Jobs       []JobStatus

	Pending   int
	InFlight  int
	Completed int
	Failed    int
	Cancelled int
	Missed    int
}

// Next returns the earliest pending job.
func (s Snapshot) Next() (JobStatus, bool) {
	for _, j := range s.Jobs {
		if j.State == Pending {
			return j, true
		}
	}
	return JobStatus{}, false
}

// LoadReport summarizes one Load.
type LoadReport struct {
	Session      string
	Scheduled    int
	Late         int // fired immediately although past due
	Missed       int
	AlreadyFired int
	Replaced     int // pending jobs of the previous load that were discarded
}

// JobEvent is the Data of job lifecycle events on the bus.
type JobEvent struct {
	Session     string        `json:"session"`
	JobID       string        `json:"job_id"`
	Kind        script.Kind   `json:"kind"`
	Description string        `json:"description,omitempty"`
	At          time.Time     `json:"at"`
	FiredAt     time.Time     `json:"fired_at,omitzero"`
	Took        time.Duration `json:"took,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// LoadEvent is the Data of plan.loaded events.
type LoadEvent struct {
	LoadReport
	First time.Time `json:"first,omitzero"`
	Last  time.Time `json:"last,omitzero"`
}

// Status is handed to the status hook on every status tick.
type Status struct {
	Time      time.Time
	Snapshot  Snapshot
	Next      *JobStatus
	Countdown time.Duration
}
