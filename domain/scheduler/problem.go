// Package scheduler holds the task-dispatch state machine: problems,
// solutions, tasks, and the ports the registry and problem store expose
// to the rest of the system.
package scheduler

// Problem is an opaque unit of work keyed by a dense, ascending integer.
// The key doubles as the problem's identity: problems are never deleted
// and never renumbered.
type Problem struct {
	X uint64
}

// Solution is the opaque result associated with exactly one Problem by
// its X key.
type Solution struct {
	XSquared uint64
}
