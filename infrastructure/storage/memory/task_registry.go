package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskmesh/dispatch/domain/scheduler"
)

// TaskRegistry is an in-memory scheduler.Registry. A single RWMutex
// guards the task map; every operation is a single-writer,
// multi-reader critical section with no suspension once the lock is
// held.
type TaskRegistry struct {
	store scheduler.ProblemStore

	mu    sync.RWMutex
	tasks map[string]scheduler.Task
}

// NewTaskRegistry returns an empty TaskRegistry backed by store.
func NewTaskRegistry(store scheduler.ProblemStore) *TaskRegistry {
	return &TaskRegistry{
		store: store,
		tasks: make(map[string]scheduler.Task),
	}
}

// AssignTask asks the Problem Store for an unsolved Problem and, if one
// exists, mints a fresh Task in StatusAssigned owned by workerID.
func (r *TaskRegistry) AssignTask(ctx context.Context, workerID string) (scheduler.Task, bool, error) {
	problem, ok, err := r.store.GetUnsolvedProblem(ctx)
	if err != nil {
		return scheduler.Task{}, false, err
	}
	if !ok {
		return scheduler.Task{}, false, nil
	}

	task := scheduler.Task{
		ID:                uuid.NewString(),
		Problem:           problem,
		Status:            scheduler.StatusAssigned,
		LastHeartbeatUnix: time.Now().Unix(),
		Progress:          0.0,
		WorkerID:          workerID,
	}

	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()

	return task, true, nil
}

// SubmitTask transitions taskID to StatusCompleted and records solution
// against its Problem, regardless of the task's current status.
func (r *TaskRegistry) SubmitTask(ctx context.Context, taskID string, solution scheduler.Solution) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	task, exists := r.tasks[taskID]
	if !exists {
		r.mu.Unlock()
		return scheduler.ErrTaskNotFound
	}
	task.Status = scheduler.StatusCompleted
	r.tasks[taskID] = task
	r.mu.Unlock()

	return r.store.RegisterSolution(ctx, task.Problem, solution)
}

// SubmitHeartbeat updates last-heartbeat and progress for taskID. Fails
// with ErrInvalidTaskStatus if the task is not currently Assigned.
func (r *TaskRegistry) SubmitHeartbeat(ctx context.Context, taskID string, progress float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	task, exists := r.tasks[taskID]
	if !exists {
		return scheduler.ErrTaskNotFound
	}
	if task.Status != scheduler.StatusAssigned {
		return scheduler.ErrInvalidTaskStatus
	}

	task.LastHeartbeatUnix = time.Now().Unix()
	task.Progress = progress
	r.tasks[taskID] = task
	return nil
}

// CleanupTasks demotes every Assigned task whose lease has expired back
// to Pending, and returns the number demoted.
func (r *TaskRegistry) CleanupTasks(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	demoted := 0
	cutoff := now.Add(-timeout).Unix()
	for id, task := range r.tasks {
		if task.Status != scheduler.StatusAssigned {
			continue
		}
		if task.LastHeartbeatUnix > cutoff {
			continue
		}
		task.Status = scheduler.StatusPending
		r.tasks[id] = task
		demoted++
	}
	return demoted, nil
}

// UnsolvedCount passes through to the Problem Store.
func (r *TaskRegistry) UnsolvedCount(ctx context.Context) (int, error) {
	return r.store.UnsolvedCount(ctx)
}

var _ scheduler.Registry = (*TaskRegistry)(nil)
