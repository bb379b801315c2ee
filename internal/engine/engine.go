// Package engine declares the narrow surface ragd uses to reach the external
// inference engines: text and vision generation, text and image embedding,
// and relevance scoring. Model loading and all numerics live behind a Runtime.
//
// Build tags:
//
//   - Default build: NewRuntime returns a runtime that refuses every load with a
//     dependency-unavailable error, keeping CI CGO-free.
//   - `-tags=llama`: text generation, text embedding and scoring run in-process
//     through go-llama.cpp. Vision generation and image embedding still report
//     dependency-unavailable there; plug a different Runtime to serve them.
package engine

import (
	"context"

	"ragd/internal/imageutil"
)

// GenerationConfig carries sampling hyperparameters through to the engine unchanged.
type GenerationConfig struct {
	MaxNewTokens  int
	DoSample      bool
	TopK          int
	TopP          float32
	Temperature   float32
	RepeatPenalty float32
}

// LoadOptions describes one engine handle to create.
type LoadOptions struct {
	ModelPath string
	Device    string
	// CacheDir enables on-disk compile caching where the engine supports it.
	CacheDir    string
	Threads     int
	ContextSize int
	Generation  GenerationConfig
}

// VisionPrompt is the input of a vision-language generation.
type VisionPrompt struct {
	Prompt string
	Image  imageutil.Tensor
}

// Generator is a loaded generation engine. It is not reentrant: callers must
// serialise every method on one handle.
type Generator[I any] interface {
	// StartChat opens a conversational context that persists across Generate calls.
	StartChat() error
	// FinishChat drops the conversational context.
	FinishChat() error
	// Generate runs inference to completion, invoking onToken for every produced
	// fragment in order. A non-nil error from onToken stops generation and is
	// returned unchanged.
	Generate(ctx context.Context, in I, onToken func(string) error) error
	Close() error
}

// Encoder maps a batch of inputs to one fixed-length vector each, in input order.
type Encoder[T any] interface {
	Encode(ctx context.Context, inputs []T) ([][]float32, error)
	Close() error
}

// Scorer rates each document's relevance to a query; higher is more relevant.
type Scorer interface {
	Score(ctx context.Context, query string, docs []string) ([]float32, error)
	Close() error
}

// Runtime creates engine handles.
type Runtime interface {
	LoadGenerator(opts LoadOptions) (Generator[string], error)
	LoadVisionGenerator(opts LoadOptions) (Generator[VisionPrompt], error)
	LoadTextEncoder(opts LoadOptions) (Encoder[string], error)
	LoadImageEncoder(opts LoadOptions) (Encoder[imageutil.Tensor], error)
	LoadScorer(opts LoadOptions) (Scorer, error)
}

// RuntimeName names the engine runtime compiled into this binary: "llama"
// with the llama build tag, "none" otherwise.
func RuntimeName() string {
	if llamaBuilt {
		return "llama"
	}
	return "none"
}
