package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/taskmesh/dispatch/domain/scheduler"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Common field constructors for scheduler logging.

// TaskID adds a task ID field.
func TaskID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("task_id", id)
	}
}

// WorkerID adds a worker ID field.
func WorkerID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("worker_id", id)
	}
}

// ProblemX adds a problem's X field.
func ProblemX(x uint64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Uint64("problem_x", x)
	}
}

// TaskStatus adds a task status field.
func TaskStatus(s scheduler.Status) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("status", string(s))
	}
}

// FromStatus adds a from_status field for transitions.
func FromStatus(s scheduler.Status) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("from_status", string(s))
	}
}

// ToStatus adds a to_status field for transitions.
func ToStatus(s scheduler.Status) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("to_status", string(s))
	}
}

// Progress adds a task progress field.
func Progress(p float64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Float64("progress", p)
	}
}

// Demoted adds a count of tasks demoted by a reap pass.
func Demoted(count int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("demoted", count)
	}
}

// UnsolvedCount adds a count of unsolved problems.
func UnsolvedCount(count int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("unsolved_count", count)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// DurationNs adds a duration field in nanoseconds.
func DurationNs(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ns", d.Nanoseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Operation adds an operation field.
func Operation(op string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", op)
	}
}

// Reason adds a reason field.
func Reason(reason string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reason", reason)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}
