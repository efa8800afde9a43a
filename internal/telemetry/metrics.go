// Package telemetry wires OpenTelemetry metrics for the scheduler: task
// lifecycle counters and an unsolved-problem gauge, exported
// periodically to stdout.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsProvider holds the scheduler's metric instruments, backed by an
// OpenTelemetry MeterProvider with a periodic stdout exporter.
type MetricsProvider struct {
	provider *sdkmetric.MeterProvider

	tasksAssigned    metric.Int64Counter
	tasksCompleted   metric.Int64Counter
	tasksRevoked     metric.Int64Counter
	unsolvedProblems metric.Int64Gauge
}

// Option configures a MetricsProvider.
type Option func(*options)

type options struct {
	writer         io.Writer
	exportInterval time.Duration
}

// WithWriter sets the destination for exported metrics. Defaults to
// io.Discard so tests never print to the terminal.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithExportInterval sets the periodic export cadence.
func WithExportInterval(d time.Duration) Option {
	return func(o *options) {
		o.exportInterval = d
	}
}

// NewMetricsProvider builds a MetricsProvider and its instruments.
func NewMetricsProvider(opts ...Option) (*MetricsProvider, error) {
	cfg := options{
		writer:         io.Discard,
		exportInterval: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.writer))
	if err != nil {
		return nil, fmt.Errorf("create stdout metric exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.exportInterval))),
	)
	meter := provider.Meter("github.com/taskmesh/dispatch")

	tasksAssigned, err := meter.Int64Counter("tasks_assigned",
		metric.WithDescription("Total tasks handed out by AssignTask"))
	if err != nil {
		return nil, fmt.Errorf("create tasks_assigned counter: %w", err)
	}

	tasksCompleted, err := meter.Int64Counter("tasks_completed",
		metric.WithDescription("Total tasks transitioned to Completed by SubmitTask"))
	if err != nil {
		return nil, fmt.Errorf("create tasks_completed counter: %w", err)
	}

	tasksRevoked, err := meter.Int64Counter("tasks_revoked",
		metric.WithDescription("Total tasks demoted back to Pending by the reaper"))
	if err != nil {
		return nil, fmt.Errorf("create tasks_revoked counter: %w", err)
	}

	unsolvedProblems, err := meter.Int64Gauge("unsolved_problems",
		metric.WithDescription("Current count of Problems without a registered Solution"))
	if err != nil {
		return nil, fmt.Errorf("create unsolved_problems gauge: %w", err)
	}

	return &MetricsProvider{
		provider:         provider,
		tasksAssigned:    tasksAssigned,
		tasksCompleted:   tasksCompleted,
		tasksRevoked:     tasksRevoked,
		unsolvedProblems: unsolvedProblems,
	}, nil
}

// RecordTaskAssigned increments the tasks-assigned counter.
func (m *MetricsProvider) RecordTaskAssigned(ctx context.Context) {
	m.tasksAssigned.Add(ctx, 1)
}

// RecordTaskCompleted increments the tasks-completed counter.
func (m *MetricsProvider) RecordTaskCompleted(ctx context.Context) {
	m.tasksCompleted.Add(ctx, 1)
}

// RecordTasksRevoked increments the tasks-revoked counter by count.
func (m *MetricsProvider) RecordTasksRevoked(ctx context.Context, count int) {
	if count <= 0 {
		return
	}
	m.tasksRevoked.Add(ctx, int64(count))
}

// RecordUnsolvedProblems sets the unsolved-problems gauge.
func (m *MetricsProvider) RecordUnsolvedProblems(ctx context.Context, count int) {
	m.unsolvedProblems.Record(ctx, int64(count))
}

// Shutdown flushes and stops the underlying MeterProvider.
func (m *MetricsProvider) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
