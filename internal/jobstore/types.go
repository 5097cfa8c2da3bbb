package jobstore

import (
	"errors"
	"time"

	"cronbot/internal/schedule"
)

var (
	ErrNotFound  = errors.New("job not found")
	ErrDuplicate = errors.New("job id already exists")
)

// FormatVersion is the on-disk container version. Unknown or missing
// versions reset the store to empty rather than erroring.
const FormatVersion = 1

// Status classifies the outcome of a single execution.
type Status string

const (
	StatusOK        Status = "ok"
	StatusError     Status = "error"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// PayloadKind discriminates the payload union. The engine never interprets
// payloads beyond the kind; executors registered by the host do.
type PayloadKind string

const (
	// PayloadSystemEvent injects a text event into the host system.
	PayloadSystemEvent PayloadKind = "systemEvent"
	// PayloadAgentTurn asks the host to run an agent turn.
	PayloadAgentTurn PayloadKind = "agentTurn"
)

// Payload is the opaque work description carried by a job.
type Payload struct {
	Kind PayloadKind `json:"kind"`

	// PayloadSystemEvent
	Text string `json:"text,omitempty"`

	// PayloadAgentTurn
	Message string `json:"message,omitempty"`
	Channel string `json:"channel,omitempty"`

	// Meta carries executor-specific extras for either kind.
	Meta map[string]any `json:"meta,omitempty"`
}

// MergePayload applies a patch payload onto an existing one.
//
// A patch whose kind differs from the existing payload replaces it wholesale;
// heterogeneous shapes must not be field-merged. Same-kind patches merge
// shallowly: non-zero fields win, and a non-nil Meta replaces the old map.
func MergePayload(old, patch Payload) Payload {
	if patch.Kind != "" && patch.Kind != old.Kind {
		return patch
	}
	merged := old
	if patch.Text != "" {
		merged.Text = patch.Text
	}
	if patch.Message != "" {
		merged.Message = patch.Message
	}
	if patch.Channel != "" {
		merged.Channel = patch.Channel
	}
	if patch.Meta != nil {
		merged.Meta = patch.Meta
	}
	return merged
}

// RunState is the mutable execution bookkeeping attached to a job.
// All instants are unix-epoch milliseconds; zero means unset.
type RunState struct {
	// NextRunAt is the cached next due time. Zero exactly when the job is
	// disabled or its schedule can never fire again.
	NextRunAt int64 `json:"nextRunAtMs,omitempty"`

	LastRunAt    int64  `json:"lastRunAtMs,omitempty"`
	LastStatus   Status `json:"lastStatus,omitempty"`
	LastDuration int64  `json:"lastDurationMs,omitempty"`
	LastError    string `json:"lastError,omitempty"`

	// RunningAt is set while an execution is in flight. Its presence is the
	// sole guard against re-entrant execution of the same job, and a stale
	// value is how a crashed run is detected after restart.
	RunningAt int64 `json:"runningAtMs,omitempty"`

	RunCount int64 `json:"runCount"`
}

// Job is one scheduled unit of work.
type Job struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`

	Schedule schedule.Spec `json:"schedule"`
	Payload  Payload       `json:"payload"`

	// DeleteAfterRun removes the job after a one-shot fire instead of
	// disabling it. Only meaningful for at schedules.
	DeleteAfterRun bool `json:"deleteAfterRun,omitempty"`

	CreatedAt int64 `json:"createdAtMs"`
	UpdatedAt int64 `json:"updatedAtMs"`

	State RunState `json:"state"`
}

// Clone returns a deep copy so callers can't mutate the store's copy.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Payload.Meta != nil {
		m := make(map[string]any, len(j.Payload.Meta))
		for k, v := range j.Payload.Meta {
			m[k] = v
		}
		cp.Payload.Meta = m
	}
	return &cp
}

// document is the persisted container. Its shape is the on-disk schema:
// {"version": 1, "jobs": [...]}.
type document struct {
	Version int    `json:"version"`
	Jobs    []*Job `json:"jobs"`
}

// Config selects and configures the persistence driver.
//
// Driver values:
//   - "" or "file": single JSON file, atomic tmp+rename writes (default)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
