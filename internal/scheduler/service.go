package scheduler

import (
	"time"

	"cronbot/internal/eventbus"
	"cronbot/internal/jobstore"
	"cronbot/internal/schedule"
	"cronbot/pkg/logx"
)

// New wires the service. The executor and bus come from the host; pass a nil
// bus to drop events.
func New(cfg Config, store *jobstore.Store, exec Executor, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg.withDefaults(),
		store: store,
		exec:  exec,
		bus:   bus,
		log:   log,
		now:   time.Now,
	}
}

// SetClock overrides the service clock. Test hook; call before Start.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Start reconciles persisted state against the current clock and arms the
// timer. Idempotent; a second call is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.reconcileLocked()
	s.persistLocked()
	s.armLocked()
	s.log.Info("scheduler started",
		logx.Int("jobs", len(s.store.All())),
		logx.Time("armed_for", s.armedFor))
}

// Apply swaps in updated settings at runtime. Safe to call whether or not
// the service is started; the next reconcile and spec normalization pick up
// the new values.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.withDefaults()
}

// Stop cancels the pending timer. An execution already in flight finishes on
// its own; Stop only prevents future sweeps. Idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.disarmLocked()
	s.log.Info("scheduler stopped")
}

// Reload re-reads the store from durable storage, reconciles, and re-arms.
// Used to pick up external edits to the backing file.
func (s *Service) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Reload()
	s.reconcileLocked()
	s.persistLocked()
	s.armLocked()
	s.log.Info("store reloaded", logx.Int("jobs", len(s.store.All())))
}

// reconcileLocked brings every job's run state in line with the clock:
// in-flight markers older than the stuck threshold are cleared (the process
// that owned them is gone), and NextRunAt is recomputed for every job. Only
// jobs whose values actually change are touched, so a clean reconcile leaves
// the store clean.
func (s *Service) reconcileLocked() {
	now := s.now()
	nowMs := now.UnixMilli()
	stuckBefore := nowMs - s.cfg.StuckAfter.Milliseconds()

	for _, j := range s.store.All() {
		newRunning := j.State.RunningAt
		if newRunning != 0 && newRunning <= stuckBefore {
			s.log.Warn("clearing stuck run",
				logx.String("job", j.ID),
				logx.String("name", j.Name),
				logx.Time("running_since", time.UnixMilli(newRunning)))
			newRunning = 0
		}

		newNext := int64(0)
		if j.Enabled {
			if next, ok := schedule.Next(j.Schedule, now); ok {
				newNext = next.UnixMilli()
			}
		}

		if newRunning == j.State.RunningAt && newNext == j.State.NextRunAt {
			continue
		}
		_, err := s.store.Update(j.ID, func(j *jobstore.Job) {
			j.State.RunningAt = newRunning
			j.State.NextRunAt = newNext
		})
		if err != nil {
			s.log.Warn("reconcile update failed", logx.String("job", j.ID), logx.Err(err))
		}
	}
}

// persistLocked is best-effort: a failed write leaves the store dirty so the
// next persist retries automatically.
func (s *Service) persistLocked() {
	if err := s.store.Persist(); err != nil {
		s.log.Error("persist failed", logx.Err(err))
	}
}

// armLocked points the single timer at the nearest NextRunAt among enabled
// jobs, clamped to maxTimerDelay. With nothing to run the timer stays
// disarmed; every tick re-arms, which is how due times beyond the clamp are
// eventually reached.
func (s *Service) armLocked() {
	if !s.started {
		return
	}
	s.disarmLocked()

	var nearest int64
	for _, j := range s.store.Enabled() {
		n := j.State.NextRunAt
		if n == 0 {
			continue
		}
		if nearest == 0 || n < nearest {
			nearest = n
		}
	}
	if nearest == 0 {
		s.log.Debug("timer disarmed; no runnable jobs")
		return
	}

	now := s.now()
	delay := clampDelay(time.UnixMilli(nearest).Sub(now))
	s.armedFor = now.Add(delay)
	s.timer = time.AfterFunc(delay, s.onTimer)
	s.log.Debug("timer armed",
		logx.Duration("delay", delay),
		logx.Time("nearest", time.UnixMilli(nearest)))
}

func (s *Service) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armedFor = time.Time{}
}

func clampDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > maxTimerDelay {
		return maxTimerDelay
	}
	return d
}

// onTimer runs on the timer goroutine. The sweeping flag keeps overlapping
// ticks from sweeping concurrently; the active sweep re-arms when it ends,
// so a skipped tick loses nothing.
func (s *Service) onTimer() {
	s.mu.Lock()
	if !s.started || s.sweeping {
		s.mu.Unlock()
		return
	}
	s.sweeping = true
	s.mu.Unlock()

	s.sweep()

	s.mu.Lock()
	s.sweeping = false
	s.armLocked()
	s.mu.Unlock()
}

func (s *Service) publish(ev JobEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: ev.Action, Time: s.now(), Data: ev})
}
