package backend

import (
	"context"
	"sync"
)

// handle is any engine resource a slot owns.
type handle interface{ Close() error }

// Loader creates an engine handle. It runs outside every lock but the
// lifecycle lock, so it may take as long as model loading needs.
type Loader[H any] func() (H, error)

// slot holds the one engine handle of a backend together with its state.
// The handle is present whenever the state is IDLE or RUNNING; after Reset a
// handle may be retained while STOPPED until the next init replaces it.
type slot[H handle] struct {
	name string
	cell *stateCell

	// life serialises init, unload and reset.
	life sync.Mutex

	// mu guards h and is held for the duration of every engine call, since
	// engine handles are not reentrant.
	mu      sync.Mutex
	h       H
	present bool
}

func newSlot[H handle](name string) *slot[H] {
	return &slot[H]{name: name, cell: newStateCell(name)}
}

func (s *slot[H]) state() State { return s.cell.load() }

// init loads a fresh handle. Allowed only from STOPPED or ERR; a failed load
// leaves the backend in ERR.
func (s *slot[H]) init(ctx context.Context, load Loader[H]) error {
	s.life.Lock()
	defer s.life.Unlock()
	if _, ok := s.cell.transition(StateRunning, StateStopped, StateErr); !ok {
		return alreadyInitializedError{backend: s.name}
	}
	if err := ctx.Err(); err != nil {
		s.cell.store(StateStopped)
		return err
	}
	h, err := load()
	if err != nil {
		s.cell.store(StateErr)
		return err
	}
	s.mu.Lock()
	old, had := s.h, s.present
	s.h, s.present = h, true
	s.mu.Unlock()
	if had {
		_ = old.Close()
	}
	s.cell.store(StateIdle)
	return nil
}

// admit moves IDLE to RUNNING or reports why it cannot. The returned epoch
// identifies the admitted work for release.
func (s *slot[H]) admit() (uint64, error) {
	prev, epoch, ok := s.cell.admit()
	if ok {
		return epoch, nil
	}
	if prev == StateRunning {
		return 0, busyError{backend: s.name}
	}
	return 0, notReadyError{backend: s.name, state: prev}
}

// release returns work admitted at epoch to IDLE. It is a no-op if the
// backend was unloaded, reset or re-initialised in the meantime.
func (s *slot[H]) release(epoch uint64) { s.cell.releaseAt(epoch) }

// with runs fn against the handle while holding the handle lock.
func (s *slot[H]) with(fn func(H) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		return notReadyError{backend: s.name, state: s.cell.load()}
	}
	return fn(s.h)
}

// shutdown moves the backend to STOPPED. halt runs first so in-flight work can
// let go of the handle; finish then runs against the handle if one exists.
// With release set the handle is closed and forgotten.
func (s *slot[H]) shutdown(release bool, halt func(), finish func(H) error) error {
	s.life.Lock()
	defer s.life.Unlock()
	s.cell.store(StateStopped)
	if halt != nil {
		halt()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		return nil
	}
	var err error
	if finish != nil {
		err = finish(s.h)
	}
	if !release {
		return err
	}
	if cerr := s.h.Close(); err == nil {
		err = cerr
	}
	var zero H
	s.h, s.present = zero, false
	return err
}
