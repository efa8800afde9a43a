package application

import (
	"context"
	"time"

	"github.com/taskmesh/dispatch/domain/scheduler"
	"github.com/taskmesh/dispatch/infrastructure/logging"
)

// Reaper is the perpetual background activity that demotes expired
// leases back to Pending. It is the only writer that can transition a
// task from Assigned to Pending.
type Reaper struct {
	registry scheduler.Registry
	timeouts scheduler.Timeouts
	onDemote func(ctx context.Context, demoted int)
}

// NewReaper returns a Reaper bound to registry, waking every
// timeouts.ReaperPeriod and reaping leases older than
// timeouts.HeartbeatTimeout. onDemote, if non-nil, is called after each
// tick with the number of tasks demoted (used to feed metrics).
func NewReaper(registry scheduler.Registry, timeouts scheduler.Timeouts, onDemote func(ctx context.Context, demoted int)) *Reaper {
	return &Reaper{
		registry: registry,
		timeouts: timeouts,
		onDemote: onDemote,
	}
}

// Run blocks, ticking every ReaperPeriod, until ctx is cancelled. A
// storage fault inside one tick is logged and the loop continues.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.timeouts.ReaperPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	demoted, err := r.registry.CleanupTasks(ctx, time.Now(), r.timeouts.HeartbeatTimeout)
	if err != nil {
		logging.Error().
			Add(logging.ErrorField(err)).
			Add(logging.Component("reaper")).
			Msg("cleanup tasks failed")
		return
	}

	if r.onDemote != nil {
		r.onDemote(ctx, demoted)
	}

	count, err := r.registry.UnsolvedCount(ctx)
	if err != nil {
		logging.Error().
			Add(logging.ErrorField(err)).
			Add(logging.Component("reaper")).
			Msg("unsolved count failed")
		return
	}

	logging.Info().
		Add(logging.Component("reaper")).
		Add(logging.Demoted(demoted)).
		Add(logging.UnsolvedCount(count)).
		Msg("reap tick complete")
}
