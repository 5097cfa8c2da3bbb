// Package schedule computes when jobs are due.
//
// It is a pure calculator: no state, no I/O, no clock of its own. Callers
// pass the current time in, which keeps the time math deterministic under
// test.
//
// # Schedule kinds
//
//   - at: a single fixed instant. Exhausted once the instant has passed.
//   - every: a fixed interval aligned to an anchor instant, so ticks stay on
//     the anchor's grid no matter when the computation runs.
//   - cron: a 5-field (minute hour dom month dow) or 6-field (leading
//     seconds) expression. Fields support "*", values, comma lists, ranges,
//     and steps.
//
// # Cron dialect
//
// Two deliberate divergences from POSIX cron, which downstream callers rely
// on: day-of-month and weekday are ANDed when both are restricted, and
// malformed field tokens are dropped silently instead of failing the parse.
// Run Validate at job-creation time to catch expressions that can never
// fire.
package schedule
