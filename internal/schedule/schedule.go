package schedule

import (
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the schedule union.
type Kind string

const (
	// KindAt fires once at a fixed instant, then is exhausted.
	KindAt Kind = "at"
	// KindEvery fires repeatedly on a fixed interval aligned to an anchor.
	KindEvery Kind = "every"
	// KindCron fires according to a 5- or 6-field cron expression.
	KindCron Kind = "cron"
)

// Spec is a schedule definition. Exactly one kind is active; the other
// fields are zero. Times and intervals are unix-epoch milliseconds so the
// on-disk form is stable across hosts and timezones.
type Spec struct {
	Kind Kind `json:"kind"`

	// KindAt
	DueAt int64 `json:"dueAtMs,omitempty"`

	// KindEvery
	Interval int64 `json:"intervalMs,omitempty"`
	// Anchor is the alignment origin. Zero means "anchor at job creation";
	// the store stamps it when the job is added.
	Anchor int64 `json:"anchorMs,omitempty"`

	// KindCron
	Expr     string `json:"expr,omitempty"`
	Timezone string `json:"tz,omitempty"` // IANA name; empty means host-local
}

var (
	ErrInvalidSpec  = errors.New("invalid schedule spec")
	ErrNeverFires   = errors.New("schedule can never fire")
	ErrBadTimezone  = errors.New("invalid timezone")
	ErrBadFieldCount = errors.New("cron expression must have 5 or 6 fields")
)

// At returns a one-shot spec due at the given instant.
func At(due time.Time) Spec { return Spec{Kind: KindAt, DueAt: due.UnixMilli()} }

// Every returns an interval spec. A zero anchor is stamped at job creation.
func Every(interval time.Duration) Spec {
	return Spec{Kind: KindEvery, Interval: interval.Milliseconds()}
}

// Cron returns a cron spec evaluated in the given IANA timezone
// (empty = host-local).
func Cron(expr, tz string) Spec { return Spec{Kind: KindCron, Expr: expr, Timezone: tz} }

// Next computes the next due time strictly after now, or false if the
// schedule can never fire again.
//
// Semantics per kind:
//   - at: DueAt iff it is still in the future; a past DueAt is exhausted.
//   - every: the smallest anchor + k*interval strictly greater than now.
//     An unset anchor behaves as if anchored at now.
//   - cron: forward search from the next minute (or second, for 6-field
//     expressions) boundary, bounded to a two-year horizon.
func Next(spec Spec, now time.Time) (time.Time, bool) {
	switch spec.Kind {
	case KindAt:
		if spec.DueAt > now.UnixMilli() {
			return time.UnixMilli(spec.DueAt), true
		}
		return time.Time{}, false

	case KindEvery:
		if spec.Interval <= 0 {
			return time.Time{}, false
		}
		nowMs := now.UnixMilli()
		anchor := spec.Anchor
		if anchor == 0 {
			anchor = nowMs
		}
		if nowMs < anchor {
			return time.UnixMilli(anchor), true
		}
		k := (nowMs-anchor)/spec.Interval + 1
		return time.UnixMilli(anchor + k*spec.Interval), true

	case KindCron:
		expr, err := parseCron(spec.Expr)
		if err != nil {
			return time.Time{}, false
		}
		return expr.next(now, loadLocation(spec.Timezone))

	default:
		return time.Time{}, false
	}
}

// Validate checks a spec for problems that are better caught at job-creation
// time than discovered as a job that silently never fires. For cron specs it
// runs one horizon search from now, so an expression whose tokens were all
// dropped as malformed (empty admissible set) is reported here.
func Validate(spec Spec, now time.Time) error {
	switch spec.Kind {
	case KindAt:
		if spec.DueAt <= 0 {
			return fmt.Errorf("%w: at schedule requires dueAtMs", ErrInvalidSpec)
		}
		return nil

	case KindEvery:
		if spec.Interval <= 0 {
			return fmt.Errorf("%w: every schedule requires intervalMs > 0", ErrInvalidSpec)
		}
		return nil

	case KindCron:
		if spec.Timezone != "" {
			if _, err := time.LoadLocation(spec.Timezone); err != nil {
				return fmt.Errorf("%w: %q", ErrBadTimezone, spec.Timezone)
			}
		}
		expr, err := parseCron(spec.Expr)
		if err != nil {
			return err
		}
		if _, ok := expr.next(now, loadLocation(spec.Timezone)); !ok {
			return fmt.Errorf("%w: %q has no match within %s", ErrNeverFires, spec.Expr, searchHorizonText)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, spec.Kind)
	}
}

// loadLocation resolves an IANA timezone name, falling back to the host
// timezone on empty or unknown names. Validate reports bad names; at
// evaluation time we degrade instead of refusing to schedule.
func loadLocation(tz string) *time.Location {
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}
