package backend

import (
	"context"
	"errors"
	"sync"

	"ragd/internal/engine"
)

// fakeGenerator emits tokens for every Generate call. When gate is non-nil each
// token waits for a value on it.
type fakeGenerator[I any] struct {
	mu       sync.Mutex
	tokens   []string
	gate     chan struct{}
	err      error
	inputs   []I
	starts   int
	finishes int
	closed   int
}

func (g *fakeGenerator[I]) StartChat() error {
	g.mu.Lock()
	g.starts++
	g.mu.Unlock()
	return nil
}

func (g *fakeGenerator[I]) FinishChat() error {
	g.mu.Lock()
	g.finishes++
	g.mu.Unlock()
	return nil
}

func (g *fakeGenerator[I]) Generate(ctx context.Context, in I, onToken func(string) error) error {
	g.mu.Lock()
	g.inputs = append(g.inputs, in)
	tokens, gate, genErr := g.tokens, g.gate, g.err
	g.mu.Unlock()
	for _, tok := range tokens {
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return genErr
}

func (g *fakeGenerator[I]) Close() error {
	g.mu.Lock()
	g.closed++
	g.mu.Unlock()
	return nil
}

func (g *fakeGenerator[I]) snapshot() (inputs []I, starts, finishes, closed int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]I(nil), g.inputs...), g.starts, g.finishes, g.closed
}

func loaderOf[H any](h H) Loader[H] { return func() (H, error) { return h, nil } }

func failingLoader[H any](msg string) Loader[H] {
	return func() (H, error) {
		var zero H
		return zero, errors.New(msg)
	}
}

// fakeEncoder returns vector {i, len(input)} style embeddings via fn.
type fakeEncoder[T any] struct {
	mu     sync.Mutex
	calls  [][]T
	fn     func(in T) []float32
	err    error
	short  bool
	closed int
}

func (e *fakeEncoder[T]) Encode(_ context.Context, inputs []T) ([][]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, append([]T(nil), inputs...))
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, e.fn(in))
	}
	if e.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (e *fakeEncoder[T]) Close() error {
	e.mu.Lock()
	e.closed++
	e.mu.Unlock()
	return nil
}

// fakeScorer scores documents through a lookup table.
type fakeScorer struct {
	scores map[string]float32
	err    error
	short  bool
}

func (s *fakeScorer) Score(_ context.Context, _ string, docs []string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float32, len(docs))
	for i, d := range docs {
		out[i] = s.scores[d]
	}
	if s.short {
		out = out[1:]
	}
	return out, nil
}

func (s *fakeScorer) Close() error { return nil }

var _ engine.Generator[string] = (*fakeGenerator[string])(nil)
var _ engine.Encoder[string] = (*fakeEncoder[string])(nil)
var _ engine.Scorer = (*fakeScorer)(nil)
