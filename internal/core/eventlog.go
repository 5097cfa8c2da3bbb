package core

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"cronbot/internal/eventbus"
	"cronbot/internal/scheduler"
	"cronbot/pkg/logx"
)

// eventLogger mirrors bus traffic into the log at a bounded rate, so a job
// misfiring every second cannot flood log sinks. Dropped events are counted
// and reported once a minute instead of logged individually.
type eventLogger struct {
	log     logx.Logger
	limiter *rate.Limiter
	dropped atomic.Int64
}

func newEventLogger(log logx.Logger, perSec, burst int) *eventLogger {
	if perSec <= 0 {
		perSec = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &eventLogger{
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

// run consumes the subscription until ctx is cancelled.
func (e *eventLogger) run(ctx context.Context, events <-chan eventbus.Event) {
	report := time.NewTicker(time.Minute)
	defer report.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-report.C:
			if n := e.dropped.Swap(0); n > 0 {
				e.log.Warn("event log entries suppressed by rate cap", logx.Int64("count", n))
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !e.limiter.Allow() {
				e.dropped.Add(1)
				continue
			}
			e.logEvent(ev)
		}
	}
}

func (e *eventLogger) logEvent(ev eventbus.Event) {
	switch data := ev.Data.(type) {
	case scheduler.JobEvent:
		fields := []logx.Field{
			logx.String("job", data.JobID),
			logx.String("name", data.Name),
		}
		if data.Status != "" {
			fields = append(fields, logx.String("status", string(data.Status)))
		}
		if data.Error != "" {
			fields = append(fields, logx.String("error", data.Error))
		}
		if data.Duration > 0 {
			fields = append(fields, logx.Int64("duration_ms", data.Duration))
		}
		e.log.Info(ev.Type, fields...)
	case TriggerEvent:
		e.log.Debug(ev.Type,
			logx.String("job", data.JobID),
			logx.String("name", data.JobName),
			logx.String("kind", string(data.Payload.Kind)))
	default:
		e.log.Debug(ev.Type)
	}
}
