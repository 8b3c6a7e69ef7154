package engine

import "sync/atomic"

// State of the shutdown coordinator. Workers are never interrupted
// mid-burst: cancellation is cooperative, observed at the top of each
// polling cycle, followed by a bounded drain.
type State int32

const (
	// Running means all workers poll normally.
	Running State = iota
	// Stopping means the stop signal fired; workers finish their
	// current cycle and drain.
	Stopping
	// Drained means every worker has reported completion and the
	// process may exit.
	Drained
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Drained:
		return "drained"
	}
	return "unknown"
}

type coordinator struct {
	state atomic.Int32
}

func (c *coordinator) enter(s State) {
	c.state.Store(int32(s))
}

func (c *coordinator) State() State {
	return State(c.state.Load())
}
