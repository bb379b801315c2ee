package e2e

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode"

	"ragd/internal/config"
	"ragd/internal/engine"
	"ragd/internal/httpapi"
	"ragd/internal/imageutil"
	"ragd/internal/manager"
	"ragd/internal/vectorstore"
)

// echoGenerator streams its prompt back word by word.
type echoGenerator struct{}

func (echoGenerator) StartChat() error  { return nil }
func (echoGenerator) FinishChat() error { return nil }
func (echoGenerator) Close() error      { return nil }
func (echoGenerator) Generate(ctx context.Context, in string, onToken func(string) error) error {
	for _, tok := range strings.SplitAfter(in, " ") {
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return nil
}

// captionGenerator describes any image with its width.
type captionGenerator struct{}

func (captionGenerator) StartChat() error  { return nil }
func (captionGenerator) FinishChat() error { return nil }
func (captionGenerator) Close() error      { return nil }
func (captionGenerator) Generate(ctx context.Context, in engine.VisionPrompt, onToken func(string) error) error {
	if err := onToken("a picture"); err != nil {
		return err
	}
	if in.Image.Width > 1 {
		return onToken(" wider than a pixel")
	}
	return nil
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var vocabulary = []string{"x", "go", "sql", "letter", "language", "database"}

// bagEncoder embeds text as a bag of vocabulary words.
type bagEncoder struct{}

func (bagEncoder) Close() error { return nil }
func (bagEncoder) Encode(_ context.Context, in []string) ([][]float32, error) {
	out := make([][]float32, len(in))
	for i, s := range in {
		v := make([]float32, len(vocabulary))
		for _, w := range words(s) {
			for k, term := range vocabulary {
				if w == term {
					v[k]++
				}
			}
		}
		out[i] = v
	}
	return out, nil
}

// colorEncoder embeds an image as its first pixel.
type colorEncoder struct{}

func (colorEncoder) Close() error { return nil }
func (colorEncoder) Encode(_ context.Context, in []imageutil.Tensor) ([][]float32, error) {
	out := make([][]float32, len(in))
	for i, t := range in {
		out[i] = []float32{float32(t.Data[0]) + 1, float32(t.Data[1]) + 1, float32(t.Data[2]) + 1}
	}
	return out, nil
}

// overlapScorer counts query words present in each document.
type overlapScorer struct{}

func (overlapScorer) Close() error { return nil }
func (overlapScorer) Score(_ context.Context, q string, docs []string) ([]float32, error) {
	qw := map[string]bool{}
	for _, w := range words(q) {
		qw[w] = true
	}
	out := make([]float32, len(docs))
	for i, d := range docs {
		for _, w := range words(d) {
			if qw[w] {
				out[i]++
			}
		}
	}
	return out, nil
}

type fakeRuntime struct{}

func (fakeRuntime) LoadGenerator(engine.LoadOptions) (engine.Generator[string], error) {
	return echoGenerator{}, nil
}
func (fakeRuntime) LoadVisionGenerator(engine.LoadOptions) (engine.Generator[engine.VisionPrompt], error) {
	return captionGenerator{}, nil
}
func (fakeRuntime) LoadTextEncoder(engine.LoadOptions) (engine.Encoder[string], error) {
	return bagEncoder{}, nil
}
func (fakeRuntime) LoadImageEncoder(engine.LoadOptions) (engine.Encoder[imageutil.Tensor], error) {
	return colorEncoder{}, nil
}
func (fakeRuntime) LoadScorer(engine.LoadOptions) (engine.Scorer, error) { return overlapScorer{}, nil }

func newServer(t *testing.T, rt engine.Runtime) (*httptest.Server, *manager.Manager) {
	t.Helper()
	cfg := config.Default()
	cfg.DBConnection = vectorstore.MemoryDSN
	mgr := manager.NewWithConfig(manager.ManagerConfig{Config: cfg, Runtime: rt})
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close()
	})
	return srv, mgr
}

// post sends body and returns status, response body and headers.
func post(t *testing.T, srv *httptest.Server, path, contentType, body string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, contentType, strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b), resp.Header
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

// mustPost fails the test unless path answers 200 with want.
func mustPost(t *testing.T, srv *httptest.Server, path, body, want string) {
	t.Helper()
	code, got, _ := post(t, srv, path, "text/plain", body)
	if code != http.StatusOK || got != want {
		t.Fatalf("POST %s: status=%d body=%q want %q", path, code, got, want)
	}
}

// drain polls path until the end of the stream and returns the text.
func drain(t *testing.T, srv *httptest.Server, path string) string {
	t.Helper()
	return drainWithin(t, srv, path, 5*time.Second)
}

func drainWithin(t *testing.T, srv *httptest.Server, path string, d time.Duration) string {
	t.Helper()
	var b strings.Builder
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNoContent:
			time.Sleep(2 * time.Millisecond)
		case resp.Header.Get(httpapi.HeaderStreamEnd) == "1":
			if e := resp.Header.Get(httpapi.HeaderStreamError); e != "" {
				t.Fatalf("stream error: %s", e)
			}
			return b.String()
		case resp.StatusCode == http.StatusOK:
			b.Write(body)
		default:
			t.Fatalf("GET %s: status=%d", path, resp.StatusCode)
		}
	}
	t.Fatalf("stream on %s did not end", path)
	return ""
}
