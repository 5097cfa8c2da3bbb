package scheduler

import (
	"context"
	"math"
	"sync"
	"time"

	"cronbot/internal/eventbus"
	"cronbot/internal/jobstore"
	"cronbot/internal/schedule"
	"cronbot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	// StuckAfter is the age past which an in-flight marker is treated as a
	// leftover from a crashed run and cleared on reconciliation.
	// Defaults to 2h.
	StuckAfter time.Duration

	// DefaultTimezone is the IANA zone stamped onto cron specs that arrive
	// without one. Empty leaves such specs host-local.
	DefaultTimezone string
}

const defaultStuckAfter = 2 * time.Hour

// maxTimerDelay is the longest delay a single timer arm may use (the classic
// 32-bit millisecond ceiling, ~24.8 days). Further-out due times are reached
// by re-arming when the capped timer fires.
const maxTimerDelay = time.Duration(math.MaxInt32) * time.Millisecond

func (c Config) withDefaults() Config {
	if c.StuckAfter <= 0 {
		c.StuckAfter = defaultStuckAfter
	}
	return c
}

// ExecResult is what the executor collaborator reports for one run.
type ExecResult struct {
	Status  jobstore.Status
	Error   string
	Summary string
}

// Executor performs a job's payload. Supplied by the host; the scheduler
// passes the payload through untouched. May block; it receives the run
// context and should honor cancellation.
type Executor func(ctx context.Context, job *jobstore.Job) ExecResult

// JobSpec is the input to Add.
type JobSpec struct {
	Name           string
	Description    string
	Schedule       schedule.Spec
	Payload        jobstore.Payload
	Disabled       bool
	DeleteAfterRun bool
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Name           *string
	Description    *string
	Schedule       *schedule.Spec
	Payload        *jobstore.Payload
	Enabled        *bool
	DeleteAfterRun *bool
}

// RunOpts controls a manual Run. Forced runs (the normal manual case) leave
// the job's schedule untouched: NextRunAt is not consumed or recomputed and
// one-shot jobs are not retired.
type RunOpts struct {
	Forced bool
}

// RunResult is the outcome of one execution.
type RunResult struct {
	Status   jobstore.Status
	Error    string
	Summary  string
	Duration time.Duration
}

// Event types published on the bus.
const (
	EventAdded    = "job.added"
	EventUpdated  = "job.updated"
	EventRemoved  = "job.removed"
	EventStarted  = "job.started"
	EventFinished = "job.finished"
)

// JobEvent is the Data carried by scheduler events.
type JobEvent struct {
	JobID  string `json:"jobId"`
	Name   string `json:"name"`
	Action string `json:"action"`

	RunAt     int64           `json:"runAtMs,omitempty"`
	Duration  int64           `json:"durationMs,omitempty"`
	Status    jobstore.Status `json:"status,omitempty"`
	Error     string          `json:"error,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	NextRunAt int64           `json:"nextRunAtMs,omitempty"`
}

// Service arms a single timer at the nearest due time, sweeps due jobs when
// it fires, and exposes the job CRUD/run API.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	store *jobstore.Store
	exec  Executor
	bus   eventbus.Bus

	now func() time.Time

	started  bool
	timer    *time.Timer
	armedFor time.Time // diagnostic; zero while disarmed
	sweeping bool
}

// ScheduleInfo is a per-job diagnostics row.
type ScheduleInfo struct {
	ID         string
	Name       string
	Schedule   string
	Enabled    bool
	Running    bool
	NextRun    time.Time
	LastRun    time.Time
	LastStatus jobstore.Status
	RunCount   int64
}

// Snapshot is a point-in-time diagnostics view of the service.
type Snapshot struct {
	Started  bool
	ArmedFor time.Time
	Jobs     []ScheduleInfo
}
