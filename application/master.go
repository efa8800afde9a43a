package application

import (
	"context"
	"errors"
	"sync"

	"github.com/taskmesh/dispatch/domain/scheduler"
)

// Master composes a Problem Store and Task Registry with the Reaper and
// Generator background loops. It owns their lifecycle: Start launches
// both loops, Stop cancels them and waits for exit.
type Master struct {
	Store    scheduler.ProblemStore
	Registry scheduler.Registry

	reaper    *Reaper
	generator *Generator

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMaster wires store and registry with a Reaper and Generator
// configured from timeouts. onDemote is forwarded to the Reaper (see
// NewReaper); it may be nil.
func NewMaster(store scheduler.ProblemStore, registry scheduler.Registry, timeouts scheduler.Timeouts, onDemote func(ctx context.Context, demoted int)) *Master {
	return &Master{
		Store:     store,
		Registry:  registry,
		reaper:    NewReaper(registry, timeouts, onDemote),
		generator: NewGenerator(store, timeouts.GeneratorPeriod),
	}
}

// Start launches the Reaper and Generator loops under ctx. Returns an
// error if already running.
func (m *Master) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return errors.New("master already running")
	}
	m.running = true

	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.reaper.Run(ctx)
	}()
	go func() {
		defer m.wg.Done()
		m.generator.Run(ctx)
	}()

	return nil
}

// Stop cancels the background loops and waits for them to exit.
func (m *Master) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}
