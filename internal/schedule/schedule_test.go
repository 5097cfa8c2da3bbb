package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestNextAt(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	due := now.Add(time.Hour)
	got, ok := Next(At(due), now)
	if !ok {
		t.Fatal("future at schedule should fire")
	}
	if got.UnixMilli() != due.UnixMilli() {
		t.Fatalf("Next = %v, want %v", got, due)
	}

	// Exactly now and in the past are both exhausted.
	if _, ok := Next(At(now), now); ok {
		t.Fatal("at schedule due exactly now must not fire")
	}
	if _, ok := Next(At(now.Add(-time.Minute)), now); ok {
		t.Fatal("past at schedule must not fire")
	}
}

func TestNextEveryAlignment(t *testing.T) {
	t.Parallel()
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	const interval = int64(60_000)
	spec := Spec{Kind: KindEvery, Interval: interval, Anchor: anchor}

	offsets := []int64{0, 1, 59_999, 60_000, 90_000, 86_400_000, 86_400_001}
	for _, off := range offsets {
		now := time.UnixMilli(anchor + off)
		got, ok := Next(spec, now)
		if !ok {
			t.Fatalf("offset %d: every schedule must always fire", off)
		}
		ms := got.UnixMilli()
		if (ms-anchor)%interval != 0 {
			t.Fatalf("offset %d: %d not aligned to anchor grid", off, ms)
		}
		if ms <= now.UnixMilli() {
			t.Fatalf("offset %d: next %d not strictly after now %d", off, ms, now.UnixMilli())
		}
		if ms-now.UnixMilli() > interval {
			t.Fatalf("offset %d: next %d more than one interval away", off, ms)
		}
	}
}

func TestNextEveryBeforeAnchor(t *testing.T) {
	t.Parallel()
	anchor := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	spec := Spec{Kind: KindEvery, Interval: 60_000, Anchor: anchor.UnixMilli()}

	got, ok := Next(spec, anchor.Add(-time.Hour))
	if !ok || got.UnixMilli() != anchor.UnixMilli() {
		t.Fatalf("Next before anchor = %v, %v; want anchor", got, ok)
	}
}

func TestNextEveryUnanchored(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	got, ok := Next(Every(time.Minute), now)
	if !ok {
		t.Fatal("unanchored every schedule must fire")
	}
	if want := now.Add(time.Minute); got.UnixMilli() != want.UnixMilli() {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNextEveryInvalidInterval(t *testing.T) {
	t.Parallel()
	now := time.Now()
	for _, iv := range []int64{0, -5} {
		if _, ok := Next(Spec{Kind: KindEvery, Interval: iv}, now); ok {
			t.Fatalf("interval %d must yield none", iv)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		spec    Spec
		wantErr error
	}{
		{name: "at ok", spec: At(now.Add(time.Hour))},
		{name: "at missing due", spec: Spec{Kind: KindAt}, wantErr: ErrInvalidSpec},
		{name: "every ok", spec: Every(time.Minute)},
		{name: "every zero interval", spec: Spec{Kind: KindEvery}, wantErr: ErrInvalidSpec},
		{name: "cron ok", spec: Cron("0 9 * * *", "UTC")},
		{name: "cron bad tz", spec: Cron("0 9 * * *", "Mars/Olympus"), wantErr: ErrBadTimezone},
		{name: "cron field count", spec: Cron("* * *", ""), wantErr: ErrBadFieldCount},
		{name: "cron never fires", spec: Cron("0 0 30 2 *", "UTC"), wantErr: ErrNeverFires},
		{name: "cron all tokens malformed", spec: Cron("x * * * *", "UTC"), wantErr: ErrNeverFires},
		{name: "unknown kind", spec: Spec{Kind: "weekly"}, wantErr: ErrInvalidSpec},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.spec, now)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	if s := Format(Cron("0 9 * * *", "Asia/Jakarta")); s != `cron "0 9 * * *" (Asia/Jakarta)` {
		t.Fatalf("unexpected cron format: %s", s)
	}
	if s := Format(Every(90 * time.Second)); s != "every 1m30s" {
		t.Fatalf("unexpected every format: %s", s)
	}
}
