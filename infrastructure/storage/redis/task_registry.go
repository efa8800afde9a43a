package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/taskmesh/dispatch/domain/scheduler"
)

// taskRecord is the wire shape persisted in the sorted-set members: a
// Task plus the worker identity currently holding its lease.
type taskRecord struct {
	ID                string  `json:"id"`
	ProblemX          uint64  `json:"problem_x"`
	LastHeartbeatUnix int64   `json:"last_heartbeat_unix"`
	Progress          float64 `json:"progress"`
	WorkerID          string  `json:"worker_id"`
}

func (rec taskRecord) task(status scheduler.Status) scheduler.Task {
	return scheduler.Task{
		ID:                rec.ID,
		Problem:           scheduler.Problem{X: rec.ProblemX},
		Status:            status,
		LastHeartbeatUnix: rec.LastHeartbeatUnix,
		Progress:          rec.Progress,
		WorkerID:          rec.WorkerID,
	}
}

// TaskRegistry is a Redis-backed scheduler.Registry: the shared-queue
// persistence variant described by the design's key layout (P:tasks,
// P:worker:{w}, P:result:{id}, P:heartbeat:{w}). Problem/solution state
// still flows through a scheduler.ProblemStore (normally the in-memory
// one) — only task-assignment state lives in Redis.
//
// Worker liveness is tracked by the TTL on P:heartbeat:{w} rather than
// a per-task timestamp field: CleanupTasks ignores the now/timeout
// arguments it receives (Redis expiry already enforces the lease) and
// instead sweeps worker queues whose heartbeat key has expired.
type TaskRegistry struct {
	client *goredis.Client
	store  scheduler.ProblemStore

	prefix       string
	taskTTL      time.Duration
	heartbeatTTL time.Duration
}

// NewTaskRegistry dials Redis per cfg and returns a TaskRegistry backed
// by store for problem/solution state.
func NewTaskRegistry(cfg Config, store scheduler.ProblemStore, opts ...ConfigOption) (*TaskRegistry, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &TaskRegistry{
		client:       client,
		store:        store,
		prefix:       cfg.KeyPrefix,
		taskTTL:      cfg.TaskTTL,
		heartbeatTTL: cfg.HeartbeatTTL,
	}, nil
}

// NewTaskRegistryFromClient builds a TaskRegistry over an existing
// Redis client, for callers that already manage connection lifecycle.
func NewTaskRegistryFromClient(client *goredis.Client, store scheduler.ProblemStore, prefix string, taskTTL, heartbeatTTL time.Duration) *TaskRegistry {
	return &TaskRegistry{
		client:       client,
		store:        store,
		prefix:       prefix,
		taskTTL:      taskTTL,
		heartbeatTTL: heartbeatTTL,
	}
}

func (r *TaskRegistry) tasksKey() string           { return r.prefix + "tasks" }
func (r *TaskRegistry) workerKey(w string) string  { return r.prefix + "worker:" + w }
func (r *TaskRegistry) resultKey(id string) string { return r.prefix + "result:" + id }
func (r *TaskRegistry) heartbeatKey(w string) string {
	return r.prefix + "heartbeat:" + w
}
func (r *TaskRegistry) indexKey(id string) string { return r.prefix + "index:" + id }

// AssignTask first drains any externally pre-seeded P:tasks entry via
// an atomic ZPOPMIN; failing that, it mints a fresh Task from the
// Problem Store, exactly as the in-memory variant does. Either way the
// Task is handed to workerID by ZADD into P:worker:{w}.
func (r *TaskRegistry) AssignTask(ctx context.Context, workerID string) (scheduler.Task, bool, error) {
	if err := ctx.Err(); err != nil {
		return scheduler.Task{}, false, err
	}

	rec, popped, err := r.popPending(ctx)
	if err != nil {
		return scheduler.Task{}, false, r.wrapError(err)
	}

	if !popped {
		problem, ok, err := r.store.GetUnsolvedProblem(ctx)
		if err != nil {
			return scheduler.Task{}, false, err
		}
		if !ok {
			return scheduler.Task{}, false, nil
		}
		rec = taskRecord{
			ID:                uuid.NewString(),
			ProblemX:          problem.X,
			LastHeartbeatUnix: time.Now().Unix(),
			Progress:          0.0,
		}
	}
	rec.WorkerID = workerID

	if err := r.holdForWorker(ctx, rec); err != nil {
		return scheduler.Task{}, false, r.wrapError(err)
	}

	return rec.task(scheduler.StatusAssigned), true, nil
}

func (r *TaskRegistry) popPending(ctx context.Context) (taskRecord, bool, error) {
	popped, err := r.client.ZPopMin(ctx, r.tasksKey(), 1).Result()
	if err != nil {
		return taskRecord{}, false, err
	}
	if len(popped) == 0 {
		return taskRecord{}, false, nil
	}

	var rec taskRecord
	member, _ := popped[0].Member.(string)
	if err := json.Unmarshal([]byte(member), &rec); err != nil {
		return taskRecord{}, false, err
	}
	return rec, true, nil
}

func (r *TaskRegistry) holdForWorker(ctx context.Context, rec taskRecord) error {
	member, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	workerKey := r.workerKey(rec.WorkerID)
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, workerKey, goredis.Z{Score: float64(rec.LastHeartbeatUnix), Member: string(member)})
	pipe.Expire(ctx, workerKey, r.taskTTL)
	pipe.Set(ctx, r.indexKey(rec.ID), rec.WorkerID, r.taskTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// SubmitTask transitions taskID to Completed and records solution
// against its Problem while the task is still in its worker's queue,
// including after that worker's heartbeat key has expired. Once
// CleanupTasks has swept the worker's queue the task is no longer
// known: SubmitTask then returns ErrTaskNotFound and the solution is
// not recorded. A resubmission for a task whose result is already
// stored returns nil.
func (r *TaskRegistry) SubmitTask(ctx context.Context, taskID string, solution scheduler.Solution) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rec, found, err := r.findHeld(ctx, taskID)
	if err != nil {
		return r.wrapError(err)
	}
	if !found {
		// Idempotent resubmission: a result already recorded for this
		// task is not an error.
		exists, err := r.client.Exists(ctx, r.resultKey(taskID)).Result()
		if err != nil {
			return r.wrapError(err)
		}
		if exists == 0 {
			return scheduler.ErrTaskNotFound
		}
		return nil
	}

	payload, err := json.Marshal(solution)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, r.workerKey(rec.WorkerID), mustJSON(rec))
	pipe.Set(ctx, r.resultKey(taskID), payload, r.taskTTL)
	pipe.Del(ctx, r.indexKey(taskID))
	if _, err := pipe.Exec(ctx); err != nil {
		return r.wrapError(err)
	}

	return r.store.RegisterSolution(ctx, scheduler.Problem{X: rec.ProblemX}, solution)
}

// SubmitHeartbeat refreshes the issuing worker's liveness TTL and
// updates the task's tracked progress. Returns ErrInvalidTaskStatus if
// the task's result is already recorded, or if its index entry remains
// but its worker queue no longer holds it. Returns ErrTaskNotFound if
// taskID is unknown, which includes a task CleanupTasks has swept.
func (r *TaskRegistry) SubmitHeartbeat(ctx context.Context, taskID string, progress float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	workerID, err := r.client.Get(ctx, r.indexKey(taskID)).Result()
	if errors.Is(err, goredis.Nil) {
		exists, existsErr := r.client.Exists(ctx, r.resultKey(taskID)).Result()
		if existsErr != nil {
			return r.wrapError(existsErr)
		}
		if exists > 0 {
			return scheduler.ErrInvalidTaskStatus
		}
		return scheduler.ErrTaskNotFound
	}
	if err != nil {
		return r.wrapError(err)
	}

	rec, found, err := r.findInWorker(ctx, workerID, taskID)
	if err != nil {
		return r.wrapError(err)
	}
	if !found {
		return scheduler.ErrInvalidTaskStatus
	}

	old := mustJSON(rec)
	rec.LastHeartbeatUnix = time.Now().Unix()
	rec.Progress = progress

	pipe := r.client.TxPipeline()
	workerKey := r.workerKey(workerID)
	pipe.ZRem(ctx, workerKey, old)
	pipe.ZAdd(ctx, workerKey, goredis.Z{Score: float64(rec.LastHeartbeatUnix), Member: mustJSON(rec)})
	pipe.Expire(ctx, workerKey, r.taskTTL)
	pipe.Set(ctx, r.heartbeatKey(workerID), "", r.heartbeatTTL)
	pipe.Expire(ctx, r.indexKey(taskID), r.taskTTL)
	_, err = pipe.Exec(ctx)
	return r.wrapError(err)
}

// CleanupTasks sweeps worker queues whose heartbeat key has expired:
// each such worker's held tasks are dropped (the underlying Problem
// stays unsolved in the Problem Store, so a later AssignTask mints a
// fresh Task for it) and the worker's queue and index entries are
// removed. now and timeout are accepted to satisfy scheduler.Registry
// but unused: Redis's own key expiry is the timeout mechanism here.
func (r *TaskRegistry) CleanupTasks(ctx context.Context, _ time.Time, _ time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	workerKeys, err := r.client.Keys(ctx, r.prefix+"worker:*").Result()
	if err != nil {
		return 0, r.wrapError(err)
	}

	demoted := 0
	for _, workerKey := range workerKeys {
		workerID := workerKey[len(r.prefix+"worker:"):]

		ttl, err := r.client.TTL(ctx, r.heartbeatKey(workerID)).Result()
		if err != nil {
			return demoted, r.wrapError(err)
		}
		if ttl > 0 {
			continue
		}

		members, err := r.client.ZRangeWithScores(ctx, workerKey, 0, -1).Result()
		if err != nil {
			return demoted, r.wrapError(err)
		}

		for _, m := range members {
			member, _ := m.Member.(string)
			var rec taskRecord
			if err := json.Unmarshal([]byte(member), &rec); err != nil {
				continue
			}
			if err := r.client.Del(ctx, r.indexKey(rec.ID)).Err(); err != nil {
				return demoted, r.wrapError(err)
			}
			demoted++
		}

		if err := r.client.Del(ctx, workerKey).Err(); err != nil {
			return demoted, r.wrapError(err)
		}
	}

	return demoted, nil
}

// UnsolvedCount passes through to the Problem Store.
func (r *TaskRegistry) UnsolvedCount(ctx context.Context) (int, error) {
	return r.store.UnsolvedCount(ctx)
}

// Reset clears every key under this registry's prefix. No production
// code path calls it.
func (r *TaskRegistry) Reset(ctx context.Context) error {
	keys, err := r.client.Keys(ctx, r.prefix+"*").Result()
	if err != nil {
		return r.wrapError(err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.wrapError(r.client.Del(ctx, keys...).Err())
}

// Close closes the underlying Redis connection.
func (r *TaskRegistry) Close() error {
	return r.client.Close()
}

// Ping checks the Redis connection.
func (r *TaskRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *TaskRegistry) findHeld(ctx context.Context, taskID string) (taskRecord, bool, error) {
	workerID, err := r.client.Get(ctx, r.indexKey(taskID)).Result()
	if errors.Is(err, goredis.Nil) {
		return taskRecord{}, false, nil
	}
	if err != nil {
		return taskRecord{}, false, err
	}
	return r.findInWorker(ctx, workerID, taskID)
}

func (r *TaskRegistry) findInWorker(ctx context.Context, workerID, taskID string) (taskRecord, bool, error) {
	members, err := r.client.ZRangeWithScores(ctx, r.workerKey(workerID), 0, -1).Result()
	if err != nil {
		return taskRecord{}, false, err
	}
	for _, m := range members {
		member, _ := m.Member.(string)
		var rec taskRecord
		if err := json.Unmarshal([]byte(member), &rec); err != nil {
			continue
		}
		if rec.ID == taskID {
			return rec, true, nil
		}
	}
	return taskRecord{}, false, nil
}

func mustJSON(rec taskRecord) string {
	b, _ := json.Marshal(rec)
	return string(b)
}

// wrapError wraps Redis faults with context, matching the teacher's
// convention for this package.
func (r *TaskRegistry) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("redis operation timed out: %w", err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("redis operation timed out: %w", err)
	}
	return fmt.Errorf("redis: %w", err)
}

var _ scheduler.Registry = (*TaskRegistry)(nil)
