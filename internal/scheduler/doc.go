// Package scheduler runs persisted jobs when they come due.
//
// # Overview
//
// The service owns one timer. It is armed at the nearest known due time
// across all enabled jobs, capped at the 32-bit millisecond ceiling; when it
// fires, one sweep executes every due job serially and the timer is re-armed.
// Re-arming on every tick is what makes due times beyond the cap reachable.
//
// # Crash safety
//
// Each execution stamps an in-flight marker on the job and persists before
// the executor runs, so an unclean exit leaves evidence behind. Start() and
// Reload() reconcile: markers older than the stuck threshold are cleared and
// every job's next due time is recomputed against the current clock.
//
// # Collaborators
//
// The executor (what a payload actually does) and the event sink (a bus
// subscriber) are supplied by the host. An executor failure is recorded on
// the job and surfaced via the finished event; it never stops the sweep or
// the process. There is no automatic retry; for recurring schedules the next
// natural due time is the retry.
//
// # Concurrency
//
// Single-writer: the service serializes all store mutation. Jobs run one at
// a time within a sweep; an in-flight marker keeps the same job from ever
// running twice concurrently, including manual Run() calls.
package scheduler
