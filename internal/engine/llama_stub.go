//go:build !llama

package engine

import "ragd/internal/imageutil"

// This file is compiled when the 'llama' build tag is NOT set. Every load
// fails fast so production binaries never serve mocked output.

// llamaBuilt indicates this binary was compiled without in-process llama support.
const llamaBuilt = false

const errNotBuilt = "llama support not built (missing 'llama' build tag)"

type stubRuntime struct{}

// NewRuntime returns the runtime for this build.
func NewRuntime() Runtime { return stubRuntime{} }

func (stubRuntime) LoadGenerator(LoadOptions) (Generator[string], error) {
	return nil, ErrDependencyUnavailable(errNotBuilt)
}

func (stubRuntime) LoadVisionGenerator(LoadOptions) (Generator[VisionPrompt], error) {
	return nil, ErrDependencyUnavailable(errNotBuilt)
}

func (stubRuntime) LoadTextEncoder(LoadOptions) (Encoder[string], error) {
	return nil, ErrDependencyUnavailable(errNotBuilt)
}

func (stubRuntime) LoadImageEncoder(LoadOptions) (Encoder[imageutil.Tensor], error) {
	return nil, ErrDependencyUnavailable(errNotBuilt)
}

func (stubRuntime) LoadScorer(LoadOptions) (Scorer, error) {
	return nil, ErrDependencyUnavailable(errNotBuilt)
}
