package config

import (
	"sort"
	"strings"

	"cronbot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Paths are reported as set/unset rather than
// verbatim so reload logs stay tidy.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Scheduler
	if oldCfg.Scheduler.Enabled != newCfg.Scheduler.Enabled ||
		strings.TrimSpace(oldCfg.Scheduler.StuckAfter) != strings.TrimSpace(newCfg.Scheduler.StuckAfter) ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.stuck_after", strings.TrimSpace(newCfg.Scheduler.StuckAfter)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	// Store. Nil means file driver at the default path.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldCfg.Store != nil {
		oDriver = strings.TrimSpace(oldCfg.Store.Driver)
		oBusy = strings.TrimSpace(oldCfg.Store.BusyTimeout)
		oPathSet = strings.TrimSpace(oldCfg.Store.Path) != ""
	}
	if newCfg.Store != nil {
		nDriver = strings.TrimSpace(newCfg.Store.Driver)
		nBusy = strings.TrimSpace(newCfg.Store.BusyTimeout)
		nPathSet = strings.TrimSpace(newCfg.Store.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "store")
		attrs = append(attrs,
			logx.String("store.driver", nDriver),
			logx.Bool("store.path_set", nPathSet),
			logx.String("store.busy_timeout", nBusy),
		)
	}

	// Events. Nil means enabled with defaults; compare against that.
	oldE := eventsOrDefault(oldCfg.Events)
	newE := eventsOrDefault(newCfg.Events)
	if oldE != newE {
		changed = append(changed, "events")
		attrs = append(attrs,
			logx.Bool("events.enabled", newE.Enabled),
			logx.Int("events.rate_per_sec", newE.RatePerSec),
			logx.Int("events.burst", newE.Burst),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// eventsOrDefault resolves the effective events section, applying defaults
// for an omitted block or omitted fields.
func eventsOrDefault(e *EventsConfig) EventsConfig {
	out := EventsConfig{Enabled: true, RatePerSec: 5, Burst: 10}
	if e != nil {
		out = *e
	}
	if out.RatePerSec <= 0 {
		out.RatePerSec = 5
	}
	if out.Burst <= 0 {
		out.Burst = 10
	}
	return out
}
