package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"ragd/internal/backend"
	"ragd/internal/config"
	"ragd/internal/engine"
	"ragd/internal/imageutil"
	"ragd/internal/vectorstore"
)

// fakeRuntime hands out in-memory engines and records every call.
type fakeRuntime struct {
	mu      sync.Mutex
	gen     *fakeGenerator[string]
	vgen    *fakeGenerator[engine.VisionPrompt]
	enc     *fakeEncoder
	ienc    *fakeImageEncoder
	scorer  *fakeScorer
	loadErr error
	opts    []engine.LoadOptions
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		gen:    &fakeGenerator[string]{tokens: []string{"hello", " world"}},
		vgen:   &fakeGenerator[engine.VisionPrompt]{tokens: []string{"a cat"}},
		enc:    &fakeEncoder{},
		ienc:   &fakeImageEncoder{},
		scorer: &fakeScorer{},
	}
}

func (r *fakeRuntime) record(o engine.LoadOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = append(r.opts, o)
	return r.loadErr
}

func (r *fakeRuntime) LoadGenerator(o engine.LoadOptions) (engine.Generator[string], error) {
	if err := r.record(o); err != nil {
		return nil, err
	}
	return r.gen, nil
}

func (r *fakeRuntime) LoadVisionGenerator(o engine.LoadOptions) (engine.Generator[engine.VisionPrompt], error) {
	if err := r.record(o); err != nil {
		return nil, err
	}
	return r.vgen, nil
}

func (r *fakeRuntime) LoadTextEncoder(o engine.LoadOptions) (engine.Encoder[string], error) {
	if err := r.record(o); err != nil {
		return nil, err
	}
	return r.enc, nil
}

func (r *fakeRuntime) LoadImageEncoder(o engine.LoadOptions) (engine.Encoder[imageutil.Tensor], error) {
	if err := r.record(o); err != nil {
		return nil, err
	}
	return r.ienc, nil
}

func (r *fakeRuntime) LoadScorer(o engine.LoadOptions) (engine.Scorer, error) {
	if err := r.record(o); err != nil {
		return nil, err
	}
	return r.scorer, nil
}

type fakeGenerator[I any] struct {
	mu     sync.Mutex
	tokens []string
	inputs []I
}

func (g *fakeGenerator[I]) StartChat() error  { return nil }
func (g *fakeGenerator[I]) FinishChat() error { return nil }
func (g *fakeGenerator[I]) Close() error      { return nil }

func (g *fakeGenerator[I]) Generate(ctx context.Context, in I, onToken func(string) error) error {
	g.mu.Lock()
	g.inputs = append(g.inputs, in)
	g.mu.Unlock()
	for _, tok := range g.tokens {
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return nil
}

func (g *fakeGenerator[I]) Inputs() []I {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]I(nil), g.inputs...)
}

// fakeEncoder embeds text by keyword: each dimension counts one keyword.
type fakeEncoder struct {
	mu    sync.Mutex
	calls [][]string
}

var keywords = []string{"x", "go", "sql"}

func (e *fakeEncoder) Encode(_ context.Context, inputs []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, append([]string(nil), inputs...))
	e.mu.Unlock()
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		v := make([]float32, len(keywords))
		for k, kw := range keywords {
			if containsWord(in, kw) {
				v[k] = 1
			}
		}
		out[i] = v
	}
	return out, nil
}

func (e *fakeEncoder) Close() error { return nil }

func (e *fakeEncoder) Calls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.calls...)
}

type fakeImageEncoder struct{}

func (fakeImageEncoder) Encode(_ context.Context, imgs []imageutil.Tensor) ([][]float32, error) {
	out := make([][]float32, len(imgs))
	for i, img := range imgs {
		out[i] = []float32{float32(img.Data[0]) + 1, float32(img.Data[1]) + 1, float32(img.Data[2]) + 1}
	}
	return out, nil
}

func (fakeImageEncoder) Close() error { return nil }

// fakeScorer prefers documents mentioning "X".
type fakeScorer struct {
	mu    sync.Mutex
	calls [][]string
}

func (s *fakeScorer) Score(_ context.Context, _ string, docs []string) ([]float32, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), docs...))
	s.mu.Unlock()
	out := make([]float32, len(docs))
	for i, d := range docs {
		if containsWord(d, "x") {
			out[i] = 1
		}
	}
	return out, nil
}

func (s *fakeScorer) Close() error { return nil }

func (s *fakeScorer) Calls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.calls...)
}

func containsWord(s, w string) bool {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range words {
		if f == w {
			return true
		}
	}
	return false
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DBConnection = vectorstore.MemoryDSN
	return cfg
}

func newTestManager(t *testing.T) (*Manager, *fakeRuntime, *MemoryPublisher) {
	t.Helper()
	rt := newFakeRuntime()
	pub := NewMemoryPublisher()
	m := NewWithConfig(ManagerConfig{Config: testConfig(), Runtime: rt, Publisher: pub})
	t.Cleanup(func() { _ = m.Close() })
	return m, rt, pub
}

// drainLLM polls until the end fragment and returns the text.
func drainLLM(t *testing.T, poll func() (backend.Fragment, bool)) (string, backend.Fragment) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var text string
	for time.Now().Before(deadline) {
		f, ok := poll()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		if f.End {
			return text, f
		}
		text += f.Text
	}
	t.Fatalf("stream did not end")
	return "", backend.Fragment{}
}

var errLoad = errors.New("model file is corrupt")
