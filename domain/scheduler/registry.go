package scheduler

import (
	"context"
	"time"
)

// Timeouts configures the cadence and thresholds of the scheduler. The
// zero value is never valid; construct via DefaultTimeouts and override
// individual fields.
type Timeouts struct {
	// HeartbeatInterval is the worker-side cadence of heartbeats.
	HeartbeatInterval time.Duration

	// HeartbeatTimeout is the master-side reap threshold. Should be at
	// least 2x HeartbeatInterval to tolerate one lost heartbeat.
	HeartbeatTimeout time.Duration

	// ReaperPeriod is how often CleanupTasks runs.
	ReaperPeriod time.Duration

	// GeneratorPeriod is the cadence of new Problems.
	GeneratorPeriod time.Duration
}

// DefaultTimeouts returns the reference configuration from the design:
// a 5s heartbeat, 15s reap threshold, 1s reaper tick, 30s problem
// cadence.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		HeartbeatInterval: 5 * time.Second,
		HeartbeatTimeout:  15 * time.Second,
		ReaperPeriod:      1 * time.Second,
		GeneratorPeriod:   30 * time.Second,
	}
}

// Registry is the scheduler core: it holds the per-task state machine,
// assigns tasks, records heartbeats, accepts submissions, and reaps
// expired leases. The in-memory and Redis-backed variants both
// implement this port.
type Registry interface {
	// AssignTask asks the Problem Store for an unsolved Problem. If
	// none is available, ok is false. Otherwise it mints a fresh task
	// ID, inserts a Task in StatusAssigned with Progress 0 owned by
	// workerID, and returns it. Each successful call returns a
	// distinct task ID; two workers may race onto tasks for the same
	// Problem, and that is accepted. workerID is established once at
	// worker startup; the in-memory variant records it only for
	// symmetry and logging, while the Redis-backed variant uses it to
	// key the per-worker lease queue.
	AssignTask(ctx context.Context, workerID string) (task Task, ok bool, err error)

	// SubmitTask transitions the task to StatusCompleted and records
	// solution against its Problem. Accepted regardless of whether the
	// task is currently Assigned or Pending (a revoked lease's result
	// is still valuable); idempotent against an already-Completed task.
	// Returns ErrTaskNotFound if taskID is unknown.
	SubmitTask(ctx context.Context, taskID string, solution Solution) error

	// SubmitHeartbeat updates last-heartbeat and progress for taskID.
	// Returns ErrTaskNotFound if unknown, ErrInvalidTaskStatus if the
	// task is not currently Assigned.
	SubmitHeartbeat(ctx context.Context, taskID string, progress float64) error

	// CleanupTasks demotes every Assigned task whose lease has expired
	// back to Pending. Returns the number of tasks demoted.
	CleanupTasks(ctx context.Context, now time.Time, timeout time.Duration) (demoted int, err error)

	// UnsolvedCount passes through to the Problem Store for periodic
	// logging.
	UnsolvedCount(ctx context.Context) (int, error)
}
