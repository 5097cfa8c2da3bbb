package core

import (
	"context"
	"fmt"
	"sync"

	"cronbot/internal/eventbus"
	"cronbot/internal/jobstore"
	"cronbot/internal/scheduler"
	"cronbot/pkg/logx"
)

// Bus event types published by the built-in executors. The host surface
// (chat transport, agent loop) subscribes to these to actually deliver the
// payloads; core only routes and records.
const (
	EventSystemEvent = "trigger.system_event"
	EventAgentTurn   = "trigger.agent_turn"
)

// TriggerEvent is the Data carried by an executor bus event.
type TriggerEvent struct {
	JobID   string           `json:"jobId"`
	JobName string           `json:"jobName"`
	Payload jobstore.Payload `json:"payload"`
}

// ExecutorRegistry routes job payloads to the executor registered for their
// kind. Hosts may override the built-ins or register new kinds before Start.
type ExecutorRegistry struct {
	mu     sync.RWMutex
	byKind map[jobstore.PayloadKind]scheduler.Executor

	log logx.Logger
	bus eventbus.Bus
}

func NewExecutorRegistry(bus eventbus.Bus, log logx.Logger) *ExecutorRegistry {
	r := &ExecutorRegistry{
		byKind: make(map[jobstore.PayloadKind]scheduler.Executor),
		log:    log,
		bus:    bus,
	}
	r.Register(jobstore.PayloadSystemEvent, r.runSystemEvent)
	r.Register(jobstore.PayloadAgentTurn, r.runAgentTurn)
	return r
}

func (r *ExecutorRegistry) Register(kind jobstore.PayloadKind, exec scheduler.Executor) {
	if kind == "" || exec == nil {
		return
	}
	r.mu.Lock()
	r.byKind[kind] = exec
	r.mu.Unlock()
}

// Dispatch returns the routing executor handed to the scheduler.
func (r *ExecutorRegistry) Dispatch() scheduler.Executor {
	return func(ctx context.Context, job *jobstore.Job) scheduler.ExecResult {
		r.mu.RLock()
		exec, ok := r.byKind[job.Payload.Kind]
		r.mu.RUnlock()
		if !ok {
			r.log.Error("no executor for payload kind",
				logx.String("job", job.ID),
				logx.String("kind", string(job.Payload.Kind)))
			return scheduler.ExecResult{
				Status: jobstore.StatusError,
				Error:  fmt.Sprintf("no executor registered for payload kind %q", job.Payload.Kind),
			}
		}
		return exec(ctx, job)
	}
}

// runSystemEvent surfaces the payload text as a system event: it is logged
// and published for any transport subscribed to the bus.
func (r *ExecutorRegistry) runSystemEvent(ctx context.Context, job *jobstore.Job) scheduler.ExecResult {
	if err := ctx.Err(); err != nil {
		return scheduler.ExecResult{Status: jobstore.StatusCancelled, Error: err.Error()}
	}
	r.publish(EventSystemEvent, job)
	r.log.Info("system event fired",
		logx.String("job", job.ID),
		logx.String("name", job.Name),
		logx.String("text", job.Payload.Text))
	return scheduler.ExecResult{Status: jobstore.StatusOK, Summary: "system event delivered"}
}

// runAgentTurn hands the payload to the agent loop via the bus. Core does not
// wait for the turn to complete; delivery to the loop is the unit of work.
func (r *ExecutorRegistry) runAgentTurn(ctx context.Context, job *jobstore.Job) scheduler.ExecResult {
	if err := ctx.Err(); err != nil {
		return scheduler.ExecResult{Status: jobstore.StatusCancelled, Error: err.Error()}
	}
	if job.Payload.Message == "" {
		return scheduler.ExecResult{Status: jobstore.StatusError, Error: "agent turn payload has no message"}
	}
	r.publish(EventAgentTurn, job)
	r.log.Info("agent turn queued",
		logx.String("job", job.ID),
		logx.String("name", job.Name),
		logx.String("channel", job.Payload.Channel))
	return scheduler.ExecResult{Status: jobstore.StatusOK, Summary: "agent turn queued"}
}

func (r *ExecutorRegistry) publish(typ string, job *jobstore.Job) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: TriggerEvent{
		JobID:   job.ID,
		JobName: job.Name,
		Payload: job.Payload,
	}})
}
