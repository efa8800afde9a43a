// Package memory provides in-memory implementations of the scheduler
// ports, suitable for a single master process with no external store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/taskmesh/dispatch/domain/scheduler"
)

// ProblemStore is an in-memory scheduler.ProblemStore. Reads and writes
// to the problems map and the solutions map are guarded by separate
// locks: GetUnsolvedProblem snapshots the problem keys under the
// problems lock, releases it, sorts, then probes the solutions map
// under its own lock. It never holds both locks at once.
type ProblemStore struct {
	problemsMu sync.RWMutex
	problems   map[uint64]scheduler.Problem

	solutionsMu sync.RWMutex
	solutions   map[uint64]scheduler.Solution
}

// NewProblemStore returns an empty ProblemStore.
func NewProblemStore() *ProblemStore {
	return &ProblemStore{
		problems:  make(map[uint64]scheduler.Problem),
		solutions: make(map[uint64]scheduler.Solution),
	}
}

// GenerateProblem appends a new Problem whose X equals the current
// problem count.
func (s *ProblemStore) GenerateProblem(ctx context.Context) (scheduler.Problem, error) {
	if err := ctx.Err(); err != nil {
		return scheduler.Problem{}, err
	}

	s.problemsMu.Lock()
	defer s.problemsMu.Unlock()

	p := scheduler.Problem{X: uint64(len(s.problems))}
	s.problems[p.X] = p
	return p, nil
}

// RegisterSolution records solution under problem.X, overwriting any
// existing solution silently.
func (s *ProblemStore) RegisterSolution(ctx context.Context, problem scheduler.Problem, solution scheduler.Solution) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.problemsMu.RLock()
	_, exists := s.problems[problem.X]
	s.problemsMu.RUnlock()
	if !exists {
		return scheduler.ErrProblemNotFound
	}

	s.solutionsMu.Lock()
	s.solutions[problem.X] = solution
	s.solutionsMu.Unlock()
	return nil
}

// GetUnsolvedProblem returns the Problem with the smallest X having no
// registered Solution.
func (s *ProblemStore) GetUnsolvedProblem(ctx context.Context) (scheduler.Problem, bool, error) {
	if err := ctx.Err(); err != nil {
		return scheduler.Problem{}, false, err
	}

	s.problemsMu.RLock()
	keys := make([]uint64, 0, len(s.problems))
	for x := range s.problems {
		keys = append(keys, x)
	}
	s.problemsMu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	s.solutionsMu.RLock()
	defer s.solutionsMu.RUnlock()
	for _, x := range keys {
		if _, solved := s.solutions[x]; !solved {
			return scheduler.Problem{X: x}, true, nil
		}
	}
	return scheduler.Problem{}, false, nil
}

// UnsolvedCount returns |problems| - |solutions|.
func (s *ProblemStore) UnsolvedCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.problemsMu.RLock()
	numProblems := len(s.problems)
	s.problemsMu.RUnlock()

	s.solutionsMu.RLock()
	numSolutions := len(s.solutions)
	s.solutionsMu.RUnlock()

	return numProblems - numSolutions, nil
}

var _ scheduler.ProblemStore = (*ProblemStore)(nil)
