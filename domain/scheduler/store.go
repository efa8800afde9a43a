package scheduler

import "context"

// ProblemStore owns the mapping from a problem's X key to its Problem
// and, once solved, its Solution. It is the sole authority on "pick one
// unsolved problem."
type ProblemStore interface {
	// GenerateProblem appends a new Problem whose X equals the current
	// problem count, and returns it.
	GenerateProblem(ctx context.Context) (Problem, error)

	// RegisterSolution records solution under problem.X. Returns
	// ErrProblemNotFound if no Problem exists at that key. Overwrites
	// silently if a Solution is already registered.
	RegisterSolution(ctx context.Context, problem Problem, solution Solution) error

	// GetUnsolvedProblem returns the Problem with the smallest X having
	// no registered Solution. ok is false if every Problem is solved.
	GetUnsolvedProblem(ctx context.Context) (problem Problem, ok bool, err error)

	// UnsolvedCount returns |problems| - |solutions|, for telemetry.
	UnsolvedCount(ctx context.Context) (int, error)
}
