package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"cronbot/internal/jobstore"
	"cronbot/internal/schedule"
	"cronbot/pkg/logx"
)

// sweep executes every currently due job, serially. A job is due when it is
// enabled, its NextRunAt has passed, and no run is in flight. Failures are
// recorded on the job and never abort the sweep.
func (s *Service) sweep() {
	nowMs := s.now().UnixMilli()

	var due []*jobstore.Job
	for _, j := range s.store.Enabled() {
		if j.State.NextRunAt == 0 || j.State.NextRunAt > nowMs {
			continue
		}
		if j.State.RunningAt != 0 {
			continue
		}
		due = append(due, j)
	}
	if len(due) == 0 {
		return
	}
	// Earliest-due first. Stable for this snapshot; not a contract.
	sort.SliceStable(due, func(i, k int) bool {
		return due[i].State.NextRunAt < due[k].State.NextRunAt
	})

	s.log.Debug("sweep begin", logx.Int("due", len(due)))
	for _, j := range due {
		res, err := s.executeOne(context.Background(), j.ID, false)
		if err != nil {
			// Job vanished mid-sweep (concurrent Remove); nothing to record.
			s.log.Debug("sweep skipped job", logx.String("job", j.ID), logx.Err(err))
			continue
		}
		s.log.Debug("sweep ran job",
			logx.String("job", j.ID),
			logx.String("name", j.Name),
			logx.String("status", string(res.Status)),
			logx.Duration("took", res.Duration))
	}
}

// executeOne runs a single job to completion.
//
// The in-flight marker is claimed atomically and persisted before the
// executor is invoked, so a crash mid-run leaves visible evidence for
// stuck-run detection at the next start. The marker is cleared on every exit
// path.
func (s *Service) executeOne(ctx context.Context, id string, forced bool) (RunResult, error) {
	start := s.now()
	startMs := start.UnixMilli()

	var alreadyRunning bool
	job, err := s.store.Update(id, func(j *jobstore.Job) {
		if j.State.RunningAt != 0 {
			alreadyRunning = true
			return
		}
		j.State.RunningAt = startMs
	})
	if err != nil {
		return RunResult{}, err
	}
	if alreadyRunning {
		return RunResult{Status: jobstore.StatusSkipped, Summary: "previous run still in flight"}, nil
	}
	s.persistNow()

	s.publish(JobEvent{JobID: job.ID, Name: job.Name, Action: EventStarted, RunAt: startMs})

	res := s.invoke(ctx, job)
	took := s.now().Sub(start)

	// A cancelled run context wins over whatever the executor reported; the
	// executor already got its chance to clean up.
	if ctx.Err() != nil {
		res.Status = jobstore.StatusCancelled
		if res.Error == "" {
			res.Error = ctx.Err().Error()
		}
	}

	oneShot := job.Schedule.Kind == schedule.KindAt
	removed := false
	final, err := s.store.Update(id, func(j *jobstore.Job) {
		j.State.RunningAt = 0
		j.State.LastRunAt = startMs
		j.State.LastStatus = res.Status
		j.State.LastDuration = took.Milliseconds()
		j.State.LastError = res.Error
		j.State.RunCount++

		// One-shots are retired after a scheduled fire whether or not it
		// succeeded; the failure is recorded but there is no retry. Forced
		// manual runs do not consume the schedule.
		if oneShot && !forced {
			j.State.NextRunAt = 0
			if j.DeleteAfterRun {
				return // removed below, after the run state is persisted once
			}
			j.Enabled = false
			return
		}

		if !forced && j.Enabled {
			if next, ok := schedule.Next(j.Schedule, s.now()); ok {
				j.State.NextRunAt = next.UnixMilli()
			} else {
				j.State.NextRunAt = 0
			}
		}
	})
	if err != nil {
		// Removed while running; nothing left to finalize.
		return toRunResult(res, took), nil
	}
	if oneShot && !forced && final.DeleteAfterRun {
		if err := s.store.Remove(id); err == nil {
			removed = true
		}
	}
	s.persistNow()

	ev := JobEvent{
		JobID:    job.ID,
		Name:     job.Name,
		Action:   EventFinished,
		RunAt:    startMs,
		Duration: took.Milliseconds(),
		Status:   res.Status,
		Error:    res.Error,
		Summary:  res.Summary,
	}
	if !removed {
		ev.NextRunAt = final.State.NextRunAt
	}
	s.publish(ev)

	return toRunResult(res, took), nil
}

// invoke calls the external executor, converting panics and a missing
// executor into error results. The scheduler must survive anything the
// executor does.
func (s *Service) invoke(ctx context.Context, job *jobstore.Job) (res ExecResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("executor panicked",
				logx.String("job", job.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			res = ExecResult{Status: jobstore.StatusError, Error: fmt.Sprintf("executor panic: %v", r)}
		}
	}()

	if s.exec == nil {
		return ExecResult{Status: jobstore.StatusSkipped, Summary: "no executor configured"}
	}
	res = s.exec(ctx, job)
	if res.Status == "" {
		res.Status = jobstore.StatusOK
	}
	return res
}

// persistNow mirrors persistLocked for paths that don't hold s.mu; the store
// serializes writes internally.
func (s *Service) persistNow() {
	if err := s.store.Persist(); err != nil {
		s.log.Error("persist failed", logx.Err(err))
	}
}

func toRunResult(res ExecResult, took time.Duration) RunResult {
	return RunResult{Status: res.Status, Error: res.Error, Summary: res.Summary, Duration: took}
}
