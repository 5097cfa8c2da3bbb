package scheduler

import (
	"time"

	"cronbot/internal/schedule"
)

// Snapshot returns a point-in-time diagnostics view. Read-only; safe to call
// from any goroutine.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	started := s.started
	armedFor := s.armedFor
	s.mu.Unlock()

	jobs := s.List(true)
	items := make([]ScheduleInfo, 0, len(jobs))
	for _, j := range jobs {
		it := ScheduleInfo{
			ID:         j.ID,
			Name:       j.Name,
			Schedule:   schedule.Format(j.Schedule),
			Enabled:    j.Enabled,
			Running:    j.State.RunningAt != 0,
			LastStatus: j.State.LastStatus,
			RunCount:   j.State.RunCount,
		}
		if j.State.NextRunAt != 0 {
			it.NextRun = time.UnixMilli(j.State.NextRunAt)
		}
		if j.State.LastRunAt != 0 {
			it.LastRun = time.UnixMilli(j.State.LastRunAt)
		}
		items = append(items, it)
	}

	return Snapshot{Started: started, ArmedFor: armedFor, Jobs: items}
}
