package application

import (
	"context"
	"testing"
	"time"

	"github.com/taskmesh/dispatch/domain/scheduler"
	"github.com/taskmesh/dispatch/infrastructure/storage/memory"
)

func TestMaster_StartStop(t *testing.T) {
	t.Parallel()

	store := memory.NewProblemStore()
	registry := memory.NewTaskRegistry(store)
	timeouts := scheduler.DefaultTimeouts()
	timeouts.ReaperPeriod = 5 * time.Millisecond
	timeouts.GeneratorPeriod = 5 * time.Millisecond

	master := NewMaster(store, registry, timeouts, nil)

	if err := master.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	count, err := store.UnsolvedCount(context.Background())
	if err != nil {
		t.Fatalf("UnsolvedCount: %v", err)
	}
	if count == 0 {
		t.Error("expected the generator loop to have produced problems while running")
	}

	master.Stop()
}

func TestMaster_StartTwiceFails(t *testing.T) {
	t.Parallel()

	store := memory.NewProblemStore()
	registry := memory.NewTaskRegistry(store)
	master := NewMaster(store, registry, scheduler.DefaultTimeouts(), nil)

	if err := master.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer master.Stop()

	if err := master.Start(context.Background()); err == nil {
		t.Error("Start() should fail when already running")
	}
}

func TestMaster_StopIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.NewProblemStore()
	registry := memory.NewTaskRegistry(store)
	master := NewMaster(store, registry, scheduler.DefaultTimeouts(), nil)

	// Stop before Start should be a harmless no-op.
	master.Stop()

	if err := master.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	master.Stop()
	master.Stop()
}
