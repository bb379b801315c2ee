package backend

import (
	"context"
	"fmt"
	"sync"

	"ragd/internal/engine"
	"ragd/internal/imageutil"
)

// PrepareFunc turns request inputs into engine inputs.
type PrepareFunc[T any] func(ctx context.Context, inputs []string) ([]T, error)

// Encoder is a synchronous batch embedding backend.
type Encoder[T any] struct {
	slot    *slot[engine.Encoder[T]]
	prepare PrepareFunc[T]
}

// NewEncoder returns a STOPPED encoder backend.
func NewEncoder[T any](name string, prepare PrepareFunc[T]) *Encoder[T] {
	return &Encoder[T]{slot: newSlot[engine.Encoder[T]](name), prepare: prepare}
}

// NewTextEncoder embeds strings as given.
func NewTextEncoder(name string) *Encoder[string] {
	return NewEncoder[string](name, func(_ context.Context, in []string) ([]string, error) { return in, nil })
}

// NewImageEncoder embeds images read from the given file paths.
func NewImageEncoder(name string) *Encoder[imageutil.Tensor] {
	return NewEncoder[imageutil.Tensor](name, imageutil.LoadAll)
}

func (e *Encoder[T]) Name() string { return e.slot.name }

func (e *Encoder[T]) State() State { return e.slot.state() }

// Init loads the embedding engine.
func (e *Encoder[T]) Init(ctx context.Context, load Loader[engine.Encoder[T]]) error {
	return e.slot.init(ctx, load)
}

// Unload releases the engine handle.
func (e *Encoder[T]) Unload() error { return e.slot.shutdown(true, nil, nil) }

// EncodeLease is an admitted encoder. Release must be called exactly once.
type EncodeLease[T any] struct {
	e     *Encoder[T]
	once  sync.Once
	epoch uint64
}

// Acquire admits one unit of work (IDLE to RUNNING).
func (e *Encoder[T]) Acquire() (*EncodeLease[T], error) {
	epoch, err := e.slot.admit()
	if err != nil {
		return nil, err
	}
	return &EncodeLease[T]{e: e, epoch: epoch}, nil
}

// Release returns the backend to IDLE.
func (l *EncodeLease[T]) Release() { l.once.Do(func() { l.e.slot.release(l.epoch) }) }

// Encode embeds inputs, one vector per input in input order. An empty batch
// returns an empty result without reaching the engine.
func (l *EncodeLease[T]) Encode(ctx context.Context, inputs []string) ([][]float32, error) {
	e := l.e
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	prepared, err := e.prepare(ctx, inputs)
	if err != nil {
		return nil, encodeError{backend: e.slot.name, err: err}
	}
	var vecs [][]float32
	err = e.slot.with(func(h engine.Encoder[T]) error {
		var err error
		vecs, err = h.Encode(ctx, prepared)
		return err
	})
	if err != nil {
		if IsNotReady(err) {
			return nil, err
		}
		return nil, encodeError{backend: e.slot.name, err: err}
	}
	if len(vecs) != len(inputs) {
		return nil, encodeError{backend: e.slot.name, err: fmt.Errorf("engine returned %d vectors for %d inputs", len(vecs), len(inputs))}
	}
	return vecs, nil
}

// Encode admits, encodes and releases.
func (e *Encoder[T]) Encode(ctx context.Context, inputs []string) ([][]float32, error) {
	l, err := e.Acquire()
	if err != nil {
		return nil, err
	}
	defer l.Release()
	return l.Encode(ctx, inputs)
}
