package application

import (
	"context"
	"time"

	"github.com/taskmesh/dispatch/domain/scheduler"
	"github.com/taskmesh/dispatch/infrastructure/logging"
)

// Generator wakes every GeneratorPeriod and appends a new Problem to
// the Problem Store.
type Generator struct {
	store  scheduler.ProblemStore
	period time.Duration
}

// NewGenerator returns a Generator bound to store, waking every period.
func NewGenerator(store scheduler.ProblemStore, period time.Duration) *Generator {
	return &Generator{store: store, period: period}
}

// Run blocks, ticking every period, until ctx is cancelled. A storage
// fault inside one tick is logged and the loop continues.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick(ctx)
		}
	}
}

func (g *Generator) tick(ctx context.Context) {
	problem, err := g.store.GenerateProblem(ctx)
	if err != nil {
		logging.Error().
			Add(logging.ErrorField(err)).
			Add(logging.Component("generator")).
			Msg("generate problem failed")
		return
	}

	logging.Debug().
		Add(logging.Component("generator")).
		Add(logging.ProblemX(problem.X)).
		Msg("problem generated")
}
