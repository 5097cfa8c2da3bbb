package schedule

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Format renders a spec as a short human-readable string for logs and
// diagnostics. Purely cosmetic; no caller should parse the result.
func Format(spec Spec) string {
	switch spec.Kind {
	case KindAt:
		due := time.UnixMilli(spec.DueAt)
		return fmt.Sprintf("once at %s (%s)", due.Format("2006-01-02 15:04:05 MST"), humanize.Time(due))
	case KindEvery:
		d := time.Duration(spec.Interval) * time.Millisecond
		if spec.Anchor > 0 {
			return fmt.Sprintf("every %s (anchored %s)", d, humanize.Time(time.UnixMilli(spec.Anchor)))
		}
		return fmt.Sprintf("every %s", d)
	case KindCron:
		if spec.Timezone != "" {
			return fmt.Sprintf("cron %q (%s)", spec.Expr, spec.Timezone)
		}
		return fmt.Sprintf("cron %q", spec.Expr)
	default:
		return fmt.Sprintf("unknown schedule %q", string(spec.Kind))
	}
}
