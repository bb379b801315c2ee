// Package backend implements the stateful wrappers around every engine ragd
// orchestrates. Each backend serialises access to one non-reentrant engine
// handle behind a State flag whose transitions are atomic check-and-set.
package backend

import "sync"

// State is the availability of a backend.
type State int

const (
	// StateStopped means no usable engine handle exists.
	StateStopped State = iota
	// StateIdle accepts a new unit of work.
	StateIdle
	// StateRunning is executing work; new work is rejected as busy.
	StateRunning
	// StateErr records a collaborator failure; re-init is permitted.
	StateErr
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateErr:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Live reports whether the backend holds a usable handle.
func (s State) Live() bool { return s == StateIdle || s == StateRunning }

// stateCell guards one backend's State. All admission goes through transition.
// epoch advances on every init or shutdown so work admitted under an earlier
// lifecycle can be told apart from current work.
type stateCell struct {
	name  string
	mu    sync.Mutex
	s     State
	epoch uint64
}

func newStateCell(name string) *stateCell {
	c := &stateCell{name: name}
	backendState.WithLabelValues(name).Set(float64(StateStopped))
	return c
}

func (c *stateCell) load() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

func (c *stateCell) store(s State) {
	c.mu.Lock()
	c.s = s
	c.epoch++
	backendState.WithLabelValues(c.name).Set(float64(s))
	c.mu.Unlock()
}

// transition moves the cell to `to` if the current state is one of from.
// It returns the state observed before the attempt.
func (c *stateCell) transition(to State, from ...State) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.s
	for _, f := range from {
		if prev == f {
			c.s = to
			backendState.WithLabelValues(c.name).Set(float64(to))
			return prev, true
		}
	}
	return prev, false
}

// admit moves IDLE to RUNNING and returns the epoch the work belongs to.
func (c *stateCell) admit() (State, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.s
	if prev != StateIdle {
		return prev, c.epoch, false
	}
	c.s = StateRunning
	backendState.WithLabelValues(c.name).Set(float64(StateRunning))
	return prev, c.epoch, true
}

// current reports whether work admitted at epoch is still the running work.
func (c *stateCell) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s == StateRunning && c.epoch == epoch
}

// releaseAt returns work admitted at epoch to IDLE. Stale work is ignored.
func (c *stateCell) releaseAt(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s == StateRunning && c.epoch == epoch {
		c.s = StateIdle
		backendState.WithLabelValues(c.name).Set(float64(StateIdle))
	}
}
