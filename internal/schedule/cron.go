package schedule

import (
	"strconv"
	"strings"
	"time"
)

// cronExpr is a parsed cron expression. Each field is a bitmask of the
// admissible values (bit n set = value n admissible).
//
// Day-of-month and weekday are both tested on every candidate: a time must
// satisfy every restricted field at once. Traditional cron ORs the two day
// fields when both are restricted; callers here depend on the AND behavior,
// so it is kept deliberately.
type cronExpr struct {
	sec  uint64 // 0-59
	min  uint64 // 0-59
	hour uint64 // 0-23
	dom  uint64 // 1-31
	mon  uint64 // 1-12
	dow  uint64 // 0-6, Sunday=0

	hasSeconds bool
}

// searchHorizon bounds the forward search. An expression with no match in
// two years is treated as one that never fires.
const (
	searchHorizonYears = 2
	searchHorizonText  = "2 years"
)

// parseCron splits an expression into fields and parses each one.
//
// Only the field count is a hard error. Malformed tokens inside a field are
// dropped without complaint; they contribute no admissible values, which can
// leave a field empty and the expression unsatisfiable. Validate surfaces
// that case before a job is created.
func parseCron(raw string) (cronExpr, error) {
	fields := strings.Fields(strings.TrimSpace(raw))

	var e cronExpr
	switch len(fields) {
	case 5:
		e.sec = 1 // second fixed to 0
		e.min = parseField(fields[0], 0, 59)
		e.hour = parseField(fields[1], 0, 23)
		e.dom = parseField(fields[2], 1, 31)
		e.mon = parseField(fields[3], 1, 12)
		e.dow = parseField(fields[4], 0, 6)
	case 6:
		e.hasSeconds = true
		e.sec = parseField(fields[0], 0, 59)
		e.min = parseField(fields[1], 0, 59)
		e.hour = parseField(fields[2], 0, 23)
		e.dom = parseField(fields[3], 1, 31)
		e.mon = parseField(fields[4], 1, 12)
		e.dow = parseField(fields[5], 0, 6)
	default:
		return cronExpr{}, ErrBadFieldCount
	}
	return e, nil
}

// parseField parses one comma-separated field into a bitmask.
//
// Supported tokens: "*", "n", "a-b", "a-b/s", "*/s". Anything else, and any
// value outside [lo, hi], is skipped.
func parseField(field string, lo, hi int) uint64 {
	var mask uint64
	for _, tok := range strings.Split(field, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		step := 1
		if body, stepStr, ok := strings.Cut(tok, "/"); ok {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				continue
			}
			step = n
			tok = body
		}

		var from, to int
		switch {
		case tok == "*":
			from, to = lo, hi
		case strings.Contains(tok, "-"):
			a, b, _ := strings.Cut(tok, "-")
			x, err1 := strconv.Atoi(a)
			y, err2 := strconv.Atoi(b)
			if err1 != nil || err2 != nil || x > y {
				continue
			}
			from, to = x, y
		default:
			n, err := strconv.Atoi(tok)
			if err != nil {
				continue
			}
			from, to = n, n
		}

		for v := from; v <= to; v += step {
			if v >= lo && v <= hi {
				mask |= 1 << uint(v)
			}
		}
	}
	return mask
}

func bitSet(mask uint64, v int) bool {
	if v < 0 || v > 63 {
		return false
	}
	return mask&(1<<uint(v)) != 0
}

// next finds the first admissible instant strictly after now, evaluated in
// loc. It walks candidates with coarse skips: whenever a component is
// inadmissible it jumps to the start of the next month/day/hour/minute and
// re-checks from the top, so the loop touches at most a few thousand
// candidates even for sparse expressions.
func (e cronExpr) next(now time.Time, loc *time.Location) (time.Time, bool) {
	// An empty field can never match; skip the search entirely.
	if e.sec == 0 || e.min == 0 || e.hour == 0 || e.dom == 0 || e.mon == 0 || e.dow == 0 {
		return time.Time{}, false
	}

	gran := time.Minute
	if e.hasSeconds {
		gran = time.Second
	}
	t := now.In(loc).Truncate(gran).Add(gran)
	horizon := now.AddDate(searchHorizonYears, 0, 0)

	for !t.After(horizon) {
		if !bitSet(e.mon, int(t.Month())) {
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
			continue
		}
		if !bitSet(e.dom, t.Day()) || !bitSet(e.dow, int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
			continue
		}
		if !bitSet(e.hour, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc).Add(time.Hour)
			continue
		}
		if !bitSet(e.min, t.Minute()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc).Add(time.Minute)
			continue
		}
		if e.hasSeconds && !bitSet(e.sec, t.Second()) {
			t = t.Add(time.Second)
			continue
		}
		return t, true
	}
	return time.Time{}, false
}
