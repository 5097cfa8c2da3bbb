package core

import (
	"context"
	"testing"

	"cronbot/internal/eventbus"
	"cronbot/internal/jobstore"
	"cronbot/internal/scheduler"
	"cronbot/pkg/logx"
)

func testTurnJob(kind jobstore.PayloadKind) *jobstore.Job {
	return &jobstore.Job{
		ID:   "job-1",
		Name: "test",
		Payload: jobstore.Payload{
			Kind:    kind,
			Text:    "reminder text",
			Message: "check the deploy queue",
			Channel: "ops",
		},
	}
}

func TestDispatchRoutesByKind(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	reg := NewExecutorRegistry(bus, logx.Nop())
	dispatch := reg.Dispatch()

	res := dispatch(context.Background(), testTurnJob(jobstore.PayloadSystemEvent))
	if res.Status != jobstore.StatusOK {
		t.Fatalf("system event result = %+v", res)
	}
	ev := <-events
	if ev.Type != EventSystemEvent {
		t.Fatalf("event type = %s, want %s", ev.Type, EventSystemEvent)
	}
	trig, ok := ev.Data.(TriggerEvent)
	if !ok || trig.Payload.Text != "reminder text" {
		t.Fatalf("event data = %+v", ev.Data)
	}

	res = dispatch(context.Background(), testTurnJob(jobstore.PayloadAgentTurn))
	if res.Status != jobstore.StatusOK {
		t.Fatalf("agent turn result = %+v", res)
	}
	if ev := <-events; ev.Type != EventAgentTurn {
		t.Fatalf("event type = %s, want %s", ev.Type, EventAgentTurn)
	}
}

func TestDispatchUnknownKind(t *testing.T) {
	t.Parallel()
	reg := NewExecutorRegistry(nil, logx.Nop())
	res := reg.Dispatch()(context.Background(), testTurnJob("carrierPigeon"))
	if res.Status != jobstore.StatusError {
		t.Fatalf("unknown kind result = %+v", res)
	}
}

func TestRegisterOverridesBuiltin(t *testing.T) {
	t.Parallel()
	reg := NewExecutorRegistry(nil, logx.Nop())

	called := false
	reg.Register(jobstore.PayloadSystemEvent, func(context.Context, *jobstore.Job) scheduler.ExecResult {
		called = true
		return scheduler.ExecResult{Status: jobstore.StatusOK, Summary: "custom"}
	})

	res := reg.Dispatch()(context.Background(), testTurnJob(jobstore.PayloadSystemEvent))
	if !called || res.Summary != "custom" {
		t.Fatalf("override not invoked: %+v", res)
	}
}

func TestAgentTurnRequiresMessage(t *testing.T) {
	t.Parallel()
	reg := NewExecutorRegistry(nil, logx.Nop())
	job := testTurnJob(jobstore.PayloadAgentTurn)
	job.Payload.Message = ""

	res := reg.Dispatch()(context.Background(), job)
	if res.Status != jobstore.StatusError {
		t.Fatalf("empty message result = %+v", res)
	}
}

func TestBuiltinsHonorCancelledContext(t *testing.T) {
	t.Parallel()
	reg := NewExecutorRegistry(nil, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, kind := range []jobstore.PayloadKind{jobstore.PayloadSystemEvent, jobstore.PayloadAgentTurn} {
		res := reg.Dispatch()(ctx, testTurnJob(kind))
		if res.Status != jobstore.StatusCancelled {
			t.Fatalf("%s with cancelled ctx = %+v", kind, res)
		}
	}
}
