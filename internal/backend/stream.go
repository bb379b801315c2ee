package backend

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"ragd/internal/engine"
)

// DefaultStreamBuffer bounds the fragments queued between a generation and its poller.
const DefaultStreamBuffer = 256

// Fragment is one item read from a stream. The final item of every stream has
// End set; Err carries the generation failure, if any.
type Fragment struct {
	StreamID string
	Text     string
	End      bool
	Err      error
}

// StreamOptions configures a Stream.
type StreamOptions struct {
	// MultiRoundChat keeps conversational context across submissions.
	MultiRoundChat bool
	// Buffer is the fragment channel capacity; DefaultStreamBuffer when <= 0.
	Buffer int
}

// ComposeFunc builds the engine input for a prompt.
type ComposeFunc[I any] func(prompt string) (I, error)

// run is one submitted generation.
type run struct {
	id     string
	epoch  uint64
	ch     chan Fragment
	cancel context.CancelFunc
	done   chan struct{}
}

// Stream is a generation backend whose output is produced by a background
// goroutine and drained by polling.
type Stream[I any] struct {
	slot       *slot[engine.Generator[I]]
	multiRound bool
	buffer     int
	compose    ComposeFunc[I]

	mu  sync.Mutex // guards cur
	cur *run
}

// NewStream returns a STOPPED stream backend.
func NewStream[I any](name string, opts StreamOptions, compose ComposeFunc[I]) *Stream[I] {
	buf := opts.Buffer
	if buf <= 0 {
		buf = DefaultStreamBuffer
	}
	return &Stream[I]{
		slot:       newSlot[engine.Generator[I]](name),
		multiRound: opts.MultiRoundChat,
		buffer:     buf,
		compose:    compose,
	}
}

// NewTextStream returns a stream whose engine input is the prompt itself.
func NewTextStream(name string, opts StreamOptions) *Stream[string] {
	return NewStream[string](name, opts, func(p string) (string, error) { return p, nil })
}

// Name returns the backend name used in errors and metrics.
func (s *Stream[I]) Name() string { return s.slot.name }

// State returns the current state.
func (s *Stream[I]) State() State { return s.slot.state() }

// Init loads the generator. With multi-round chat the conversation is opened here.
func (s *Stream[I]) Init(ctx context.Context, load Loader[engine.Generator[I]]) error {
	return s.slot.init(ctx, func() (engine.Generator[I], error) {
		g, err := load()
		if err != nil {
			return nil, err
		}
		if s.multiRound {
			if err := g.StartChat(); err != nil {
				_ = g.Close()
				return nil, err
			}
		}
		return g, nil
	})
}

// SubmitLease is an admitted, not yet started generation.
type SubmitLease[I any] struct {
	s     *Stream[I]
	once  sync.Once
	epoch uint64
}

// Acquire admits one generation (IDLE to RUNNING). The lease must be either
// submitted or released.
func (s *Stream[I]) Acquire() (*SubmitLease[I], error) {
	epoch, err := s.slot.admit()
	if err != nil {
		return nil, err
	}
	return &SubmitLease[I]{s: s, epoch: epoch}, nil
}

// Release returns the backend to IDLE unless the lease was submitted.
func (l *SubmitLease[I]) Release() { l.once.Do(func() { l.s.slot.release(l.epoch) }) }

// Submit starts generation for prompt and returns the stream id. The backend
// stays RUNNING until the end fragment is polled. On error the backend is
// returned to IDLE. A lease outlived by Unload, Reset or a re-init fails with
// NotReady and starts nothing.
func (l *SubmitLease[I]) Submit(prompt string) (string, error) {
	s := l.s
	started := false
	var id string
	var err error
	l.once.Do(func() {
		defer func() {
			if !started {
				s.slot.release(l.epoch)
			}
		}()
		var in I
		in, err = s.compose(prompt)
		if err != nil {
			return
		}
		if !s.multiRound {
			err = s.slot.with(func(g engine.Generator[I]) error {
				if err := g.FinishChat(); err != nil {
					return err
				}
				return g.StartChat()
			})
			if err != nil {
				return
			}
		}
		id, started = s.start(l.epoch, in)
		if !started {
			err = notReadyError{backend: s.slot.name, state: s.slot.state()}
		}
	})
	if !started && err == nil {
		err = busyError{backend: s.slot.name}
	}
	return id, err
}

// Submit admits and starts a generation in one step.
func (s *Stream[I]) Submit(prompt string) (string, error) {
	l, err := s.Acquire()
	if err != nil {
		return "", err
	}
	return l.Submit(prompt)
}

// start publishes and launches a run for work admitted at epoch. It refuses
// when that work is no longer current. The check and the publish share s.mu
// with halt, so a concurrent shutdown either sees the run or prevents it.
func (s *Stream[I]) start(epoch uint64, in I) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.slot.cell.current(epoch) {
		return "", false
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     uuid.NewString(),
		epoch:  epoch,
		ch:     make(chan Fragment, s.buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.cur = r
	go s.generate(ctx, r, in)
	return r.id, true
}

func (s *Stream[I]) generate(ctx context.Context, r *run, in I) {
	defer close(r.done)
	err := s.slot.with(func(g engine.Generator[I]) error {
		return g.Generate(ctx, in, func(tok string) error {
			select {
			case r.ch <- Fragment{StreamID: r.id, Text: tok}:
				return nil
			case <-ctx.Done():
				return engine.ErrStopped
			}
		})
	})
	if ctx.Err() != nil {
		return
	}
	select {
	case r.ch <- Fragment{StreamID: r.id, End: true, Err: err}:
	case <-ctx.Done():
	}
}

// Poll returns the next fragment without blocking. ok is false when nothing
// is queued. Draining the end fragment returns the backend to IDLE.
func (s *Stream[I]) Poll() (f Fragment, ok bool) {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return Fragment{}, false
	}
	select {
	case f = <-r.ch:
	default:
		return Fragment{}, false
	}
	streamFragments.WithLabelValues(s.slot.name).Inc()
	if f.End {
		r.cancel()
		s.mu.Lock()
		if s.cur == r {
			s.cur = nil
			s.slot.release(r.epoch)
		}
		s.mu.Unlock()
	}
	return f, true
}

// halt stops delivery of the current run and waits for its goroutine to exit.
func (s *Stream[I]) halt() {
	s.mu.Lock()
	r := s.cur
	s.cur = nil
	s.mu.Unlock()
	if r == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Unload stops any running generation, ends the chat and releases the handle.
func (s *Stream[I]) Unload() error {
	return s.slot.shutdown(true, s.halt, engine.Generator[I].FinishChat)
}

// Reset stops any running generation and ends the chat but keeps the handle.
// The backend is STOPPED afterwards; Init loads a fresh handle.
func (s *Stream[I]) Reset() error {
	return s.slot.shutdown(false, s.halt, engine.Generator[I].FinishChat)
}
