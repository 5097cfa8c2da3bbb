package scheduler

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"cronbot/internal/jobstore"
	"cronbot/internal/schedule"
	"cronbot/pkg/logx"
)

var ErrNotFound = jobstore.ErrNotFound

// normalizeSpec fills in spec fields the caller may leave open: unanchored
// intervals align to now, and cron specs without a zone pick up the
// configured default.
func (s *Service) normalizeSpec(sched schedule.Spec, now time.Time) schedule.Spec {
	if sched.Kind == schedule.KindEvery && sched.Anchor == 0 {
		sched.Anchor = now.UnixMilli()
	}
	if sched.Kind == schedule.KindCron && sched.Timezone == "" {
		sched.Timezone = s.cfg.DefaultTimezone
	}
	return sched
}

// List returns jobs sorted ascending by next run time; jobs without a next
// run sort last. Disabled jobs are included only on request.
func (s *Service) List(includeDisabled bool) []*jobstore.Job {
	jobs := s.store.All()
	if !includeDisabled {
		kept := jobs[:0]
		for _, j := range jobs {
			if j.Enabled {
				kept = append(kept, j)
			}
		}
		jobs = kept
	}
	sort.SliceStable(jobs, func(i, k int) bool {
		a, b := jobs[i].State.NextRunAt, jobs[k].State.NextRunAt
		if (a == 0) != (b == 0) {
			return a != 0
		}
		return a < b
	})
	return jobs
}

func (s *Service) Get(id string) (*jobstore.Job, error) {
	if j, ok := s.store.ByID(id); ok {
		return j, nil
	}
	return nil, ErrNotFound
}

// GetByName returns the first job with the given name (names are not unique).
func (s *Service) GetByName(name string) (*jobstore.Job, error) {
	if j, ok := s.store.ByName(name); ok {
		return j, nil
	}
	return nil, ErrNotFound
}

// Add validates the spec, allocates an id, computes the initial next-run
// time, and persists the new job.
func (s *Service) Add(spec JobSpec) (*jobstore.Job, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, errors.New("name required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sched := s.normalizeSpec(spec.Schedule, now)
	if err := schedule.Validate(sched, now); err != nil {
		return nil, err
	}

	job := &jobstore.Job{
		ID:             uuid.NewString(),
		Name:           spec.Name,
		Description:    spec.Description,
		Enabled:        !spec.Disabled,
		Schedule:       sched,
		Payload:        spec.Payload,
		DeleteAfterRun: spec.DeleteAfterRun,
		CreatedAt:      now.UnixMilli(),
		UpdatedAt:      now.UnixMilli(),
	}
	if job.Enabled {
		if next, ok := schedule.Next(sched, now); ok {
			job.State.NextRunAt = next.UnixMilli()
		}
	}

	if err := s.store.Add(job); err != nil {
		return nil, err
	}
	s.persistLocked()
	s.publish(JobEvent{JobID: job.ID, Name: job.Name, Action: EventAdded, NextRunAt: job.State.NextRunAt})
	s.armLocked()

	s.log.Info("job added",
		logx.String("job", job.ID),
		logx.String("name", job.Name),
		logx.String("schedule", schedule.Format(job.Schedule)))
	return job.Clone(), nil
}

// Update merges the patch, recomputes the next run, and persists. A payload
// patch whose kind differs from the current payload replaces it wholesale.
func (s *Service) Update(id string, patch Patch) (*jobstore.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var newSched schedule.Spec
	if patch.Schedule != nil {
		newSched = s.normalizeSpec(*patch.Schedule, now)
		if err := schedule.Validate(newSched, now); err != nil {
			return nil, err
		}
	}

	job, err := s.store.Update(id, func(j *jobstore.Job) {
		if patch.Name != nil {
			j.Name = *patch.Name
		}
		if patch.Description != nil {
			j.Description = *patch.Description
		}
		if patch.Schedule != nil {
			j.Schedule = newSched
		}
		if patch.Payload != nil {
			if patch.Payload.Kind != "" && patch.Payload.Kind != j.Payload.Kind {
				s.log.Warn("payload kind changed; replacing payload wholesale",
					logx.String("job", j.ID),
					logx.String("from", string(j.Payload.Kind)),
					logx.String("to", string(patch.Payload.Kind)))
			}
			j.Payload = jobstore.MergePayload(j.Payload, *patch.Payload)
		}
		if patch.Enabled != nil {
			j.Enabled = *patch.Enabled
		}
		if patch.DeleteAfterRun != nil {
			j.DeleteAfterRun = *patch.DeleteAfterRun
		}

		j.State.NextRunAt = 0
		if j.Enabled {
			if next, ok := schedule.Next(j.Schedule, now); ok {
				j.State.NextRunAt = next.UnixMilli()
			}
		}
	})
	if err != nil {
		return nil, err
	}
	s.persistLocked()
	s.publish(JobEvent{JobID: job.ID, Name: job.Name, Action: EventUpdated, NextRunAt: job.State.NextRunAt})
	s.armLocked()

	s.log.Info("job updated", logx.String("job", job.ID), logx.String("name", job.Name))
	return job, nil
}

// Remove deletes the job and persists.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.store.ByID(id)
	if !ok {
		return ErrNotFound
	}
	if err := s.store.Remove(id); err != nil {
		return err
	}
	s.persistLocked()
	s.publish(JobEvent{JobID: job.ID, Name: job.Name, Action: EventRemoved})
	s.armLocked()

	s.log.Info("job removed", logx.String("job", job.ID), logx.String("name", job.Name))
	return nil
}

// Run executes a job immediately, outside its normal schedule. Forced runs
// leave NextRunAt untouched and never retire one-shots. A second Run while
// the job is in flight reports skipped instead of starting a concurrent
// execution.
func (s *Service) Run(ctx context.Context, id string, opts RunOpts) (RunResult, error) {
	res, err := s.executeOne(ctx, id, opts.Forced)
	if err != nil {
		return RunResult{}, err
	}

	// State changed; the nearest due time may have too.
	s.mu.Lock()
	s.armLocked()
	s.mu.Unlock()
	return res, nil
}
