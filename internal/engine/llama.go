//go:build llama

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"ragd/internal/imageutil"
)

// llamaBuilt indicates this binary was compiled with in-process llama support.
const llamaBuilt = true

const (
	defaultContextSize = 2048
	defaultThreads     = 4
	gpuOffloadLayers   = 999
)

type llamaRuntime struct{}

// NewRuntime returns the go-llama.cpp backed runtime.
func NewRuntime() Runtime { return llamaRuntime{} }

func modelOptions(opts LoadOptions, embeddings bool) []llama.ModelOption {
	mo := []llama.ModelOption{llama.SetContext(zn(opts.ContextSize, defaultContextSize))}
	if strings.EqualFold(opts.Device, "GPU") || strings.EqualFold(opts.Device, "CUDA") {
		mo = append(mo, llama.SetGPULayers(gpuOffloadLayers))
	}
	if embeddings {
		mo = append(mo, llama.EnableEmbeddings)
	}
	return mo
}

func load(opts LoadOptions, embeddings bool) (*llama.LLama, error) {
	if strings.TrimSpace(opts.ModelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	m, err := llama.New(opts.ModelPath, modelOptions(opts, embeddings)...)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", opts.ModelPath, err)
	}
	return m, nil
}

func (llamaRuntime) LoadGenerator(opts LoadOptions) (Generator[string], error) {
	m, err := load(opts, false)
	if err != nil {
		return nil, err
	}
	return &llamaGenerator{model: m, threads: zn(opts.Threads, defaultThreads), cfg: opts.Generation}, nil
}

func (llamaRuntime) LoadVisionGenerator(LoadOptions) (Generator[VisionPrompt], error) {
	return nil, ErrDependencyUnavailable("vision generation is not supported by the llama runtime")
}

func (llamaRuntime) LoadTextEncoder(opts LoadOptions) (Encoder[string], error) {
	m, err := load(opts, true)
	if err != nil {
		return nil, err
	}
	return &llamaEncoder{model: m, threads: zn(opts.Threads, defaultThreads)}, nil
}

func (llamaRuntime) LoadImageEncoder(LoadOptions) (Encoder[imageutil.Tensor], error) {
	return nil, ErrDependencyUnavailable("image embedding is not supported by the llama runtime")
}

// LoadScorer ranks by cosine similarity between query and document embeddings
// produced by an embedding-capable model.
func (llamaRuntime) LoadScorer(opts LoadOptions) (Scorer, error) {
	m, err := load(opts, true)
	if err != nil {
		return nil, err
	}
	return &llamaScorer{enc: llamaEncoder{model: m, threads: zn(opts.Threads, defaultThreads)}}, nil
}

type llamaGenerator struct {
	model   *llama.LLama
	threads int
	cfg     GenerationConfig
	chat    Transcript
}

func (g *llamaGenerator) StartChat() error  { g.chat.Start(); return nil }
func (g *llamaGenerator) FinishChat() error { g.chat.Finish(); return nil }

func (g *llamaGenerator) Generate(ctx context.Context, prompt string, onToken func(string) error) error {
	if g.model == nil {
		return errors.New("llama model not initialized")
	}
	var cbErr error
	g.model.SetTokenCallback(func(tok string) bool {
		if ctx.Err() != nil {
			cbErr = ctx.Err()
			return false
		}
		if err := onToken(tok); err != nil {
			cbErr = err
			return false
		}
		return true
	})
	text, err := g.model.Predict(g.chat.Prompt(prompt), predictOptions(g.cfg, g.threads)...)
	if cbErr != nil {
		return cbErr
	}
	if err != nil {
		return err
	}
	g.chat.Record(prompt, text)
	return nil
}

func (g *llamaGenerator) Close() error {
	if g.model != nil {
		g.model.Free()
		g.model = nil
	}
	return nil
}

type llamaEncoder struct {
	model   *llama.LLama
	threads int
}

func (e *llamaEncoder) Encode(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, 0, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.model.Embeddings(in, llama.SetThreads(e.threads))
		if err != nil {
			return nil, fmt.Errorf("embedding input %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *llamaEncoder) Close() error {
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

type llamaScorer struct{ enc llamaEncoder }

func (s *llamaScorer) Score(ctx context.Context, query string, docs []string) ([]float32, error) {
	vecs, err := s.enc.Encode(ctx, append([]string{query}, docs...))
	if err != nil {
		return nil, err
	}
	scores := make([]float32, len(docs))
	for i := range docs {
		scores[i] = Cosine(vecs[0], vecs[i+1])
	}
	return scores, nil
}

func (s *llamaScorer) Close() error { return s.enc.Close() }

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions converts generation hyperparameters into go-llama.cpp options.
// Without sampling the engine decodes greedily.
func predictOptions(cfg GenerationConfig, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, cfg.MaxNewTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetPenalty(zf(cfg.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if !cfg.DoSample {
		return append(po, llama.SetTopK(1), llama.SetTemperature(0))
	}
	return append(po,
		llama.SetTopP(zf(cfg.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(cfg.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(cfg.Temperature, llama.DefaultOptions.Temperature)),
	)
}
