package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"cronbot/pkg/logx"
)

func TestSupervisorCancelOnError(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background(), WithLogger(logx.Nop()), WithCancelOnError(true))

	boom := errors.New("boom")
	sup.Go("failing", func(ctx context.Context) error { return boom })

	select {
	case <-sup.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("error did not cancel supervisor context")
	}
	if err := sup.Err(); !errors.Is(err, boom) {
		t.Fatalf("Err = %v, want wrapped boom", err)
	}
}

func TestSupervisorRecoversPanic(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background(), WithLogger(logx.Nop()), WithCancelOnError(true))

	sup.Go0("panicky", func(ctx context.Context) { panic("boom") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Wait(ctx); err == nil {
		t.Fatal("panic not surfaced as error")
	}
}

func TestSupervisorWaitsForGoroutines(t *testing.T) {
	t.Parallel()
	sup := NewSupervisor(context.Background(), WithLogger(logx.Nop()))

	finished := make(chan struct{})
	sup.Go("worker", func(ctx context.Context) error {
		<-ctx.Done()
		close(finished)
		return nil
	})

	sup.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	select {
	case <-finished:
	default:
		t.Fatal("Wait returned before the goroutine exited")
	}
}
