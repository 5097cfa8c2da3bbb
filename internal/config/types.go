package config

// Config is the root of the on-disk configuration. Both JSON and YAML files
// are accepted; YAML is coerced to JSON before strict decoding, so unknown
// keys are rejected in either format.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Store controls where jobs persist. If omitted, the file driver is used
	// at the per-user default path.
	Store *StoreConfig `json:"store,omitempty"`

	// Events controls the bus-to-log bridge. If omitted it defaults to
	// enabled with a modest rate cap.
	Events *EventsConfig `json:"events,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the job scheduler service.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// StuckAfter is a Go duration string (e.g. "2h"). In-flight markers older
	// than this are treated as crash leftovers and cleared on startup and
	// reload. Use "0s" for the built-in default.
	StuckAfter string `json:"stuck_after,omitempty"`

	// Timezone is the default IANA zone applied to cron jobs that don't carry
	// their own. Empty means host-local.
	Timezone string `json:"timezone,omitempty"`
}

// StoreConfig controls the job persistence layer.
//
// Example:
//
//	"store": { "driver": "sqlite", "path": "./jobs.db", "busy_timeout": "5s" }
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// EventsConfig controls the subscriber that mirrors scheduler lifecycle
// events into the log. The rate cap keeps a misbehaving job from flooding
// log sinks.
type EventsConfig struct {
	Enabled    bool `json:"enabled"`
	RatePerSec int  `json:"rate_per_sec,omitempty"` // default 5
	Burst      int  `json:"burst,omitempty"`        // default 10
}
