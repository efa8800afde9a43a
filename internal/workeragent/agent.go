// Package workeragent implements the worker side of the scheduler: a
// solver loop that owns at most one in-flight task, and a reporter
// loop that heartbeats or submits it, exactly as spec.md §4.4.
package workeragent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taskmesh/dispatch/domain/scheduler"
	"github.com/taskmesh/dispatch/infrastructure/logging"
)

// MasterClient is the worker's RPC port to the master. httpclient.Client
// implements it over HTTP.
type MasterClient interface {
	AssignTask(ctx context.Context) (task scheduler.Task, ok bool, err error)
	SubmitSolution(ctx context.Context, taskID string, solution scheduler.Solution) error
	SubmitHeartbeat(ctx context.Context, taskID string, progress float64) error
}

// Solve computes a Solution for problem. The reference implementation
// simulates work with staged sleeps between progress updates; onProgress
// is called with the fraction completed so far (SquareSolver reports
// 0.5 only; the Agent records 1.0 itself once Solve returns).
type Solve func(ctx context.Context, problem scheduler.Problem, onProgress func(progress float64)) (scheduler.Solution, error)

// SquareSolver is the reference Solve: it reports progress at 0.5 after
// a simulated compute stage, then returns x*x.
func SquareSolver(stageDelay time.Duration) Solve {
	return func(ctx context.Context, problem scheduler.Problem, onProgress func(progress float64)) (scheduler.Solution, error) {
		if err := sleepCtx(ctx, stageDelay); err != nil {
			return scheduler.Solution{}, err
		}
		onProgress(0.5)

		if err := sleepCtx(ctx, stageDelay); err != nil {
			return scheduler.Solution{}, err
		}
		return scheduler.Solution{XSquared: problem.X * problem.X}, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// inFlight is the worker's local record of its one current task.
type inFlight struct {
	taskID   string
	problem  scheduler.Problem
	progress float64
	solution *scheduler.Solution
}

// Config configures an Agent.
type Config struct {
	// PollPeriod is how often the solver loop checks for/advances its
	// current task when idle or between stages.
	PollPeriod time.Duration

	// HeartbeatInterval is how often the reporter loop wakes.
	HeartbeatInterval time.Duration

	// Solve computes a Solution for an assigned Problem. Defaults to
	// SquareSolver(10 * time.Second) if nil, matching the reference
	// staged-progress timing.
	Solve Solve
}

// Agent is the worker process: a solver goroutine and a reporter
// goroutine sharing one in-flight task record under a mutex.
type Agent struct {
	client MasterClient
	cfg    Config

	mu   sync.Mutex
	task *inFlight

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Agent talking to client.
func New(client MasterClient, cfg Config) *Agent {
	if cfg.PollPeriod == 0 {
		cfg.PollPeriod = time.Second
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.Solve == nil {
		cfg.Solve = SquareSolver(10 * time.Second)
	}
	return &Agent{client: client, cfg: cfg}
}

// Run starts the solver and reporter loops and blocks until ctx is
// cancelled, then waits for both to exit.
func (a *Agent) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.solverLoop(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.reporterLoop(ctx)
	}()

	<-ctx.Done()
	a.wg.Wait()
}

// Stop cancels the loops started by Run. Safe to call once Run has
// returned; it is a no-op in that case.
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

// taskSnapshot is an immutable copy of inFlight's fields taken under
// the lock, safe to read without further synchronization.
type taskSnapshot struct {
	taskID   string
	problem  scheduler.Problem
	progress float64
	solution *scheduler.Solution
}

func (a *Agent) currentTask() (taskSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.task == nil {
		return taskSnapshot{}, false
	}
	return taskSnapshot{
		taskID:   a.task.taskID,
		problem:  a.task.problem,
		progress: a.task.progress,
		solution: a.task.solution,
	}, true
}

func (a *Agent) hasTask() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.task != nil
}

// solverLoop owns at most one in-flight task: it claims one from the
// master when idle, then drives Solve to completion, recording
// progress as it goes for the reporter loop to see.
func (a *Agent) solverLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if !a.hasTask() {
			a.claimTask(ctx)
		}

		if task, ok := a.currentTask(); ok && task.solution == nil {
			a.solve(ctx, task)
		}

		if err := sleepCtx(ctx, a.cfg.PollPeriod); err != nil {
			return
		}
	}
}

func (a *Agent) claimTask(ctx context.Context) {
	task, ok, err := a.client.AssignTask(ctx)
	if err != nil {
		logging.Error().
			Add(logging.ErrorField(err)).
			Add(logging.Component("workeragent")).
			Add(logging.Operation("assign_task")).
			Msg("assign task failed")
		return
	}
	if !ok {
		return
	}

	a.mu.Lock()
	a.task = &inFlight{taskID: task.ID, problem: task.Problem}
	a.mu.Unlock()

	logging.Info().
		Add(logging.TaskID(task.ID)).
		Add(logging.ProblemX(task.Problem.X)).
		Add(logging.Component("workeragent")).
		Msg("task assigned")
}

func (a *Agent) solve(ctx context.Context, task taskSnapshot) {
	solution, err := a.cfg.Solve(ctx, task.problem, func(progress float64) {
		a.mu.Lock()
		if a.task != nil && a.task.taskID == task.taskID {
			a.task.progress = progress
		}
		a.mu.Unlock()
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.Error().
				Add(logging.ErrorField(err)).
				Add(logging.TaskID(task.taskID)).
				Add(logging.Component("workeragent")).
				Msg("solve failed")
		}
		return
	}

	a.mu.Lock()
	if a.task != nil && a.task.taskID == task.taskID {
		a.task.progress = 1.0
		a.task.solution = &solution
	}
	a.mu.Unlock()
}

// reporterLoop wakes every HeartbeatInterval and either heartbeats the
// in-flight task's progress or, once a solution is ready, submits it.
func (a *Agent) reporterLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.report(ctx)
		}
	}
}

func (a *Agent) report(ctx context.Context) {
	task, ok := a.currentTask()
	if !ok {
		return
	}

	if task.solution == nil {
		err := a.client.SubmitHeartbeat(ctx, task.taskID, task.progress)
		if err == nil {
			return
		}
		if errors.Is(err, scheduler.ErrTaskNotFound) || errors.Is(err, scheduler.ErrInvalidTaskStatus) {
			a.abandon(task.taskID)
			return
		}
		logging.Warn().
			Add(logging.ErrorField(err)).
			Add(logging.TaskID(task.taskID)).
			Add(logging.Component("workeragent")).
			Msg("heartbeat failed, will retry next tick")
		return
	}

	err := a.client.SubmitSolution(ctx, task.taskID, *task.solution)
	if err == nil || errors.Is(err, scheduler.ErrTaskNotFound) {
		a.abandon(task.taskID)
		return
	}
	logging.Warn().
		Add(logging.ErrorField(err)).
		Add(logging.TaskID(task.taskID)).
		Add(logging.Component("workeragent")).
		Msg("submit failed, will retry next tick")
}

// abandon clears the in-flight record if it still refers to taskID
// (the solver may have already claimed a new task by the time a
// report completes).
func (a *Agent) abandon(taskID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.task != nil && a.task.taskID == taskID {
		a.task = nil
	}
}
