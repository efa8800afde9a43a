package httpclient

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/taskmesh/dispatch/domain/scheduler"
	"github.com/taskmesh/dispatch/infrastructure/storage/memory"
	"github.com/taskmesh/dispatch/internal/httpapi"
)

func newTestMaster(t *testing.T) (*httptest.Server, scheduler.ProblemStore) {
	t.Helper()
	store := memory.NewProblemStore()
	registry := memory.NewTaskRegistry(store)
	srv := httpapi.New(registry, httpapi.Config{})
	return httptest.NewServer(srv.Handler()), store
}

func TestClient_AssignTask_NoneAvailable(t *testing.T) {
	t.Parallel()

	ts, _ := newTestMaster(t)
	defer ts.Close()

	client := New(ts.URL, 5*time.Second)
	_, ok, err := client.AssignTask(context.Background())
	if err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	if ok {
		t.Error("expected ok = false when no problem is available")
	}
}

func TestClient_FullLifecycle(t *testing.T) {
	t.Parallel()

	ts, store := newTestMaster(t)
	defer ts.Close()

	if _, err := store.GenerateProblem(context.Background()); err != nil {
		t.Fatalf("GenerateProblem: %v", err)
	}

	client := New(ts.URL, 5*time.Second)

	task, ok, err := client.AssignTask(context.Background())
	if err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	if !ok {
		t.Fatal("expected a task to be assigned")
	}

	if err := client.SubmitHeartbeat(context.Background(), task.ID, 0.5); err != nil {
		t.Fatalf("SubmitHeartbeat: %v", err)
	}

	solution := scheduler.Solution{XSquared: task.Problem.X * task.Problem.X}
	if err := client.SubmitSolution(context.Background(), task.ID, solution); err != nil {
		t.Fatalf("SubmitSolution: %v", err)
	}

	if err := client.SubmitHeartbeat(context.Background(), task.ID, 0.9); !errors.Is(err, scheduler.ErrInvalidTaskStatus) {
		t.Errorf("SubmitHeartbeat after completion: err = %v, want ErrInvalidTaskStatus", err)
	}
}

func TestClient_SubmitSolution_UnknownTask(t *testing.T) {
	t.Parallel()

	ts, _ := newTestMaster(t)
	defer ts.Close()

	client := New(ts.URL, 5*time.Second)
	err := client.SubmitSolution(context.Background(), "does-not-exist", scheduler.Solution{XSquared: 4})
	if !errors.Is(err, scheduler.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}
