package backend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ragd/internal/engine"
	"ragd/internal/imageutil"
)

func drain[I any](t *testing.T, s *Stream[I]) []Fragment {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var out []Fragment
	for time.Now().Before(deadline) {
		f, ok := s.Poll()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		out = append(out, f)
		if f.End {
			return out
		}
	}
	t.Fatalf("stream did not end; got %d fragments", len(out))
	return nil
}

func texts(fs []Fragment) []string {
	var out []string
	for _, f := range fs {
		if !f.End {
			out = append(out, f.Text)
		}
	}
	return out
}

func TestStream_PollBeforeSubmit(t *testing.T) {
	s := NewTextStream("llm-poll-empty", StreamOptions{})
	if _, ok := s.Poll(); ok {
		t.Fatalf("poll on stopped stream returned data")
	}
	if err := s.Init(context.Background(), loaderOf[engine.Generator[string]](&fakeGenerator[string]{})); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, ok := s.Poll(); ok {
		t.Fatalf("poll before submit returned data")
	}
	if s.State() != StateIdle {
		t.Fatalf("state=%s", s.State())
	}
}

func TestStream_InitLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewTextStream("llm-lifecycle", StreamOptions{})
	g := &fakeGenerator[string]{}
	if err := s.Init(ctx, loaderOf[engine.Generator[string]](g)); err != nil {
		t.Fatalf("init: %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("after init state=%s", s.State())
	}
	if got := testutil.ToFloat64(backendState.WithLabelValues("llm-lifecycle")); got != float64(StateIdle) {
		t.Fatalf("state gauge=%v", got)
	}
	if err := s.Init(ctx, loaderOf[engine.Generator[string]](g)); !IsAlreadyInitialized(err) {
		t.Fatalf("double init err=%v", err)
	}
	if err := s.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if s.State() != StateStopped {
		t.Fatalf("after unload state=%s", s.State())
	}
	if _, _, _, closed := g.snapshot(); closed != 1 {
		t.Fatalf("closed=%d", closed)
	}
	if err := s.Unload(); err != nil {
		t.Fatalf("unload when stopped: %v", err)
	}

	if err := s.Init(ctx, failingLoader[engine.Generator[string]]("no model")); err == nil {
		t.Fatalf("expected load failure")
	}
	if s.State() != StateErr {
		t.Fatalf("after failed init state=%s", s.State())
	}
	if err := s.Init(ctx, loaderOf[engine.Generator[string]](&fakeGenerator[string]{})); err != nil {
		t.Fatalf("init from ERR: %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("re-init state=%s", s.State())
	}
}

func TestStream_SubmitRequiresIdle(t *testing.T) {
	ctx := context.Background()
	s := NewTextStream("llm-requires-idle", StreamOptions{})
	if _, err := s.Submit("hi"); !IsNotReady(err) {
		t.Fatalf("submit on STOPPED err=%v", err)
	}
	if s.State() != StateStopped {
		t.Fatalf("rejected submit changed state to %s", s.State())
	}
	g := &fakeGenerator[string]{tokens: []string{"x"}, gate: make(chan struct{})}
	if err := s.Init(ctx, loaderOf[engine.Generator[string]](g)); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := s.Submit("one"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.Submit("two"); !IsBusy(err) {
		t.Fatalf("submit while RUNNING err=%v", err)
	}
	close(g.gate)
	drain(t, s)
	if inputs, _, _, _ := g.snapshot(); len(inputs) != 1 {
		t.Fatalf("rejected submit reached the engine: %v", inputs)
	}

	_ = s.Unload()
	_ = s.Init(ctx, failingLoader[engine.Generator[string]]("boom"))
	if _, err := s.Submit("three"); !IsNotReady(err) {
		t.Fatalf("submit on ERR err=%v", err)
	}
	if s.State() != StateErr {
		t.Fatalf("rejected submit changed state to %s", s.State())
	}
}

func TestStream_FragmentsInOrderThenIdle(t *testing.T) {
	s := NewTextStream("llm-order", StreamOptions{})
	g := &fakeGenerator[string]{tokens: []string{"a", "b", "c"}}
	if err := s.Init(context.Background(), loaderOf[engine.Generator[string]](g)); err != nil {
		t.Fatalf("init: %v", err)
	}
	id, err := s.Submit("go")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	frags := drain(t, s)
	if diff := cmp.Diff([]string{"a", "b", "c"}, texts(frags)); diff != "" {
		t.Fatalf("fragments (-want +got):\n%s", diff)
	}
	last := frags[len(frags)-1]
	if !last.End || last.Err != nil || last.StreamID != id {
		t.Fatalf("bad end fragment %+v (id %s)", last, id)
	}
	if s.State() != StateIdle {
		t.Fatalf("after end state=%s", s.State())
	}
	if _, ok := s.Poll(); ok {
		t.Fatalf("poll after end returned data")
	}
	if inputs, _, _, _ := g.snapshot(); !cmp.Equal(inputs, []string{"go"}) {
		t.Fatalf("engine inputs=%v", inputs)
	}
}

func TestStream_RunningUntilEndDrained(t *testing.T) {
	s := NewTextStream("llm-running", StreamOptions{})
	g := &fakeGenerator[string]{tokens: []string{"only"}}
	_ = s.Init(context.Background(), loaderOf[engine.Generator[string]](g))
	if _, err := s.Submit("p"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		f, ok := s.Poll()
		if ok && !f.End {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no fragment")
		}
		time.Sleep(time.Millisecond)
	}
	if s.State() != StateRunning {
		t.Fatalf("state before end drained=%s", s.State())
	}
	drain(t, s)
	if s.State() != StateIdle {
		t.Fatalf("state after end drained=%s", s.State())
	}
}

func TestStream_GenerationErrorOnEnd(t *testing.T) {
	s := NewTextStream("llm-generr", StreamOptions{})
	g := &fakeGenerator[string]{tokens: []string{"t"}, err: errors.New("engine died")}
	_ = s.Init(context.Background(), loaderOf[engine.Generator[string]](g))
	if _, err := s.Submit("p"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	frags := drain(t, s)
	if last := frags[len(frags)-1]; last.Err == nil {
		t.Fatalf("expected error on end fragment")
	}
	if s.State() != StateIdle {
		t.Fatalf("state=%s", s.State())
	}
}

func TestStream_ConcurrentSubmitAdmitsOne(t *testing.T) {
	s := NewTextStream("llm-concurrent", StreamOptions{})
	g := &fakeGenerator[string]{tokens: []string{"x"}, gate: make(chan struct{})}
	_ = s.Init(context.Background(), loaderOf[engine.Generator[string]](g))

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, busy := 0, 0
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Submit("p")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case IsBusy(err):
				busy++
			default:
				t.Errorf("unexpected err %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	if admitted != 1 || busy != n-1 {
		t.Fatalf("admitted=%d busy=%d", admitted, busy)
	}
	close(g.gate)
	drain(t, s)
}

func TestStream_ChatContextPerSubmission(t *testing.T) {
	ctx := context.Background()

	single := NewTextStream("llm-single-round", StreamOptions{})
	g1 := &fakeGenerator[string]{}
	_ = single.Init(ctx, loaderOf[engine.Generator[string]](g1))
	for i := 0; i < 2; i++ {
		if _, err := single.Submit("p"); err != nil {
			t.Fatalf("submit: %v", err)
		}
		drain(t, single)
	}
	if _, starts, finishes, _ := g1.snapshot(); starts != 2 || finishes != 2 {
		t.Fatalf("single round starts=%d finishes=%d", starts, finishes)
	}

	multi := NewTextStream("llm-multi-round", StreamOptions{MultiRoundChat: true})
	g2 := &fakeGenerator[string]{}
	_ = multi.Init(ctx, loaderOf[engine.Generator[string]](g2))
	for i := 0; i < 2; i++ {
		if _, err := multi.Submit("p"); err != nil {
			t.Fatalf("submit: %v", err)
		}
		drain(t, multi)
	}
	if _, starts, finishes, _ := g2.snapshot(); starts != 1 || finishes != 0 {
		t.Fatalf("multi round starts=%d finishes=%d", starts, finishes)
	}
}

func TestStream_UnloadStopsBlockedGeneration(t *testing.T) {
	s := NewTextStream("llm-unload-running", StreamOptions{Buffer: 1})
	g := &fakeGenerator[string]{tokens: []string{"1", "2", "3", "4", "5"}}
	_ = s.Init(context.Background(), loaderOf[engine.Generator[string]](g))
	if _, err := s.Submit("p"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Unload() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unload: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("unload did not return while generation was blocked")
	}
	if s.State() != StateStopped {
		t.Fatalf("state=%s", s.State())
	}
	if _, ok := s.Poll(); ok {
		t.Fatalf("poll after unload returned data")
	}
	if _, _, _, closed := g.snapshot(); closed != 1 {
		t.Fatalf("closed=%d", closed)
	}
}

func TestStream_ResetKeepsHandleUntilReinit(t *testing.T) {
	ctx := context.Background()
	s := NewTextStream("llm-reset", StreamOptions{MultiRoundChat: true})
	g := &fakeGenerator[string]{}
	_ = s.Init(ctx, loaderOf[engine.Generator[string]](g))
	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s.State() != StateStopped {
		t.Fatalf("state=%s", s.State())
	}
	_, _, finishes, closed := g.snapshot()
	if finishes != 1 || closed != 0 {
		t.Fatalf("finishes=%d closed=%d", finishes, closed)
	}
	if _, err := s.Submit("p"); !IsNotReady(err) {
		t.Fatalf("submit after reset err=%v", err)
	}
	fresh := &fakeGenerator[string]{}
	if err := s.Init(ctx, loaderOf[engine.Generator[string]](fresh)); err != nil {
		t.Fatalf("re-init: %v", err)
	}
	if _, _, _, closed := g.snapshot(); closed != 1 {
		t.Fatalf("retained handle not closed on re-init, closed=%d", closed)
	}
}

func TestStream_LeaseOutlivedByUnloadStartsNothing(t *testing.T) {
	ctx := context.Background()
	for _, multi := range []bool{true, false} {
		s := NewTextStream("llm-stale-lease", StreamOptions{MultiRoundChat: multi})
		g := &fakeGenerator[string]{tokens: []string{"a"}}
		if err := s.Init(ctx, loaderOf[engine.Generator[string]](g)); err != nil {
			t.Fatalf("init: %v", err)
		}
		l, err := s.Acquire()
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if err := s.Unload(); err != nil {
			t.Fatalf("unload: %v", err)
		}
		id, err := l.Submit("x")
		if !IsNotReady(err) || id != "" {
			t.Fatalf("multi=%v submit after unload id=%q err=%v", multi, id, err)
		}
		if s.State() != StateStopped {
			t.Fatalf("multi=%v state=%s", multi, s.State())
		}
		if inputs, _, _, _ := g.snapshot(); len(inputs) != 0 {
			t.Fatalf("multi=%v generation ran: %v", multi, inputs)
		}

		if err := s.Init(ctx, loaderOf[engine.Generator[string]](&fakeGenerator[string]{})); err != nil {
			t.Fatalf("re-init: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
		if f, ok := s.Poll(); ok {
			t.Fatalf("multi=%v stale fragment after re-init: %+v", multi, f)
		}
		if s.State() != StateIdle {
			t.Fatalf("multi=%v state after re-init=%s", multi, s.State())
		}
	}
}

func TestStream_StaleLeaseDoesNotReleaseNewRun(t *testing.T) {
	ctx := context.Background()
	s := NewTextStream("llm-stale-release", StreamOptions{MultiRoundChat: true})
	_ = s.Init(ctx, loaderOf[engine.Generator[string]](&fakeGenerator[string]{}))
	stale, err := s.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := s.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	gate := make(chan struct{})
	g := &fakeGenerator[string]{tokens: []string{"a", "b"}, gate: gate}
	if err := s.Init(ctx, loaderOf[engine.Generator[string]](g)); err != nil {
		t.Fatalf("re-init: %v", err)
	}
	if _, err := s.Submit("fresh"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	stale.Release()
	if s.State() != StateRunning {
		t.Fatalf("stale release changed state to %s", s.State())
	}
	if _, err := s.Submit("second"); !IsBusy(err) {
		t.Fatalf("second submit err=%v", err)
	}
	close(gate)
	if diff := cmp.Diff([]string{"a", "b"}, texts(drain(t, s))); diff != "" {
		t.Fatalf("fragments (-want +got):\n%s", diff)
	}
	if s.State() != StateIdle {
		t.Fatalf("state after drain=%s", s.State())
	}
}

func TestVision_RequiresImage(t *testing.T) {
	v := NewVision("vlm-image", StreamOptions{})
	g := &fakeGenerator[engine.VisionPrompt]{tokens: []string{"cat"}}
	if err := v.SetImage(imageutil.Tensor{Width: 1, Height: 1, Data: []byte{1, 2, 3}}); !IsNotReady(err) {
		t.Fatalf("set image on STOPPED err=%v", err)
	}
	_ = v.Init(context.Background(), loaderOf[engine.Generator[engine.VisionPrompt]](g))
	if _, err := v.Submit("what is this?"); !IsNotReady(err) {
		t.Fatalf("submit without image err=%v", err)
	}
	if v.State() != StateIdle {
		t.Fatalf("failed submit left state %s", v.State())
	}
	img := imageutil.Tensor{Width: 1, Height: 1, Data: []byte{9, 8, 7}}
	if err := v.SetImage(img); err != nil {
		t.Fatalf("set image: %v", err)
	}
	if !v.HasImage() || v.State() != StateIdle {
		t.Fatalf("has=%v state=%s", v.HasImage(), v.State())
	}
	if _, err := v.Submit("what is this?"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := v.SetImage(img); !IsBusy(err) {
		t.Fatalf("set image while RUNNING err=%v", err)
	}
	frags := drain(t, v.Stream)
	if diff := cmp.Diff([]string{"cat"}, texts(frags)); diff != "" {
		t.Fatalf("fragments (-want +got):\n%s", diff)
	}
	inputs, _, _, _ := g.snapshot()
	if len(inputs) != 1 || inputs[0].Prompt != "what is this?" || !cmp.Equal(inputs[0].Image, img) {
		t.Fatalf("engine inputs=%+v", inputs)
	}
	if err := v.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if v.HasImage() {
		t.Fatalf("image survived unload")
	}
}
