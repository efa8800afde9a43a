package application

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taskmesh/dispatch/domain/scheduler"
	"github.com/taskmesh/dispatch/infrastructure/storage/memory"
)

func TestReaper_DemotesExpiredLeases(t *testing.T) {
	t.Parallel()

	store := memory.NewProblemStore()
	registry := memory.NewTaskRegistry(store)
	ctx := context.Background()

	if _, err := store.GenerateProblem(ctx); err != nil {
		t.Fatalf("GenerateProblem: %v", err)
	}
	if _, _, err := registry.AssignTask(ctx, "worker-1"); err != nil {
		t.Fatalf("AssignTask: %v", err)
	}

	var demotedCount atomic.Int64
	timeouts := scheduler.Timeouts{
		ReaperPeriod:     10 * time.Millisecond,
		HeartbeatTimeout: 0, // everything assigned is immediately stale
	}
	reaper := NewReaper(registry, timeouts, func(_ context.Context, demoted int) {
		demotedCount.Add(int64(demoted))
	})

	tickCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	reaper.Run(tickCtx)

	if demotedCount.Load() == 0 {
		t.Error("expected reaper to demote at least one task")
	}
}

func TestReaper_StopsOnCancel(t *testing.T) {
	t.Parallel()

	store := memory.NewProblemStore()
	registry := memory.NewTaskRegistry(store)
	timeouts := scheduler.DefaultTimeouts()
	timeouts.ReaperPeriod = time.Millisecond

	reaper := NewReaper(registry, timeouts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Reaper.Run did not return after context cancellation")
	}
}
