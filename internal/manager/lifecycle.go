package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ragd/internal/backend"
	"ragd/internal/config"
	"ragd/internal/engine"
	"ragd/internal/imageutil"
	"ragd/internal/registry"
)

// resolveModel expands '~', checks the model exists and picks the single
// model file when given a directory. An empty path is passed through so the
// runtime can report it.
func resolveModel(path string) (string, error) {
	return registry.Resolve(path)
}

// initBackend runs init with logging and events and maps the outcome to a body.
func (m *Manager) initBackend(name, okMsg, alreadyMsg string, init func() error) (string, error) {
	m.log.Info().Str("backend", name).Msg("init start")
	m.emit("init_start", name, nil)
	if err := init(); err != nil {
		if backend.IsAlreadyInitialized(err) {
			return "", reject(alreadyMsg, err)
		}
		m.log.Error().Err(err).Str("backend", name).Msg("init failed")
		m.emit("init_error", name, map[string]any{"error": err.Error()})
		return "", fmt.Errorf("init %s: %w", name, err)
	}
	m.log.Info().Str("backend", name).Msg("init ok")
	m.emit("init_ok", name, nil)
	return okMsg, nil
}

func (m *Manager) unloaded(name string, err error) error {
	if err != nil {
		m.log.Warn().Err(err).Str("backend", name).Msg("unload")
		return fmt.Errorf("unload %s: %w", name, err)
	}
	m.log.Info().Str("backend", name).Msg("unloaded")
	m.emit("unload", name, nil)
	return nil
}

// InitLLM loads the text generation engine.
func (m *Manager) InitLLM(ctx context.Context) (string, error) {
	return m.initBackend(NameLLM, msgLLMInitOK, msgLLMInitAlready, func() error {
		return m.llm.Init(ctx, func() (engine.Generator[string], error) {
			p, err := resolveModel(m.cfg.LLMModelPath)
			if err != nil {
				return nil, err
			}
			return m.rt.LoadGenerator(m.loadOptions(p, m.cfg.LLMDevice))
		})
	})
}

// UnloadLLM stops any generation and releases the engine.
func (m *Manager) UnloadLLM() error { return m.unloaded(NameLLM, m.llm.Unload()) }

// ResetLLM ends the chat and marks the backend STOPPED without releasing the engine.
func (m *Manager) ResetLLM() error {
	err := m.llm.Reset()
	m.emit("reset", NameLLM, nil)
	return err
}

// InitVLM loads the vision-language engine. On GPU the compile cache dir is set.
func (m *Manager) InitVLM(ctx context.Context) (string, error) {
	return m.initBackend(NameVLM, msgVLMInitOK, msgVLMInitAlready, func() error {
		return m.vlm.Init(ctx, func() (engine.Generator[engine.VisionPrompt], error) {
			p, err := resolveModel(m.cfg.VLMModelPath)
			if err != nil {
				return nil, err
			}
			opts := m.loadOptions(p, m.cfg.VLMDevice)
			if strings.EqualFold(m.cfg.VLMDevice, "GPU") {
				opts.CacheDir = m.cfg.VLMCacheDir
			}
			return m.rt.LoadVisionGenerator(opts)
		})
	})
}

// UnloadVLM stops any generation, releases the engine and forgets the image.
func (m *Manager) UnloadVLM() error { return m.unloaded(NameVLM, m.vlm.Unload()) }

// ResetVLM ends the chat and marks the backend STOPPED without releasing the engine.
func (m *Manager) ResetVLM() error {
	err := m.vlm.Reset()
	m.emit("reset", NameVLM, nil)
	return err
}

// InitEmbeddings loads the text embedding engine.
func (m *Manager) InitEmbeddings(ctx context.Context) (string, error) {
	return m.initBackend(NameEmbedding, msgEmbedInitOK, msgEmbedInitAlready, func() error {
		return m.embed.Init(ctx, func() (engine.Encoder[string], error) {
			p, err := resolveModel(m.cfg.EmbeddingModelPath)
			if err != nil {
				return nil, err
			}
			return m.rt.LoadTextEncoder(m.loadOptions(p, m.cfg.EmbeddingDevice))
		})
	})
}

// UnloadEmbeddings releases the text embedding engine.
func (m *Manager) UnloadEmbeddings() error { return m.unloaded(NameEmbedding, m.embed.Unload()) }

// InitImageEmbeddings loads the image embedding engine.
func (m *Manager) InitImageEmbeddings(ctx context.Context) (string, error) {
	return m.initBackend(NameImageEmbedding, msgImageEmbedInitOK, msgImageEmbedInitAlready, func() error {
		return m.imageEmbed.Init(ctx, func() (engine.Encoder[imageutil.Tensor], error) {
			p, err := resolveModel(m.cfg.ImageEmbeddingModelPath)
			if err != nil {
				return nil, err
			}
			return m.rt.LoadImageEncoder(m.loadOptions(p, m.cfg.ImageEmbeddingDevice))
		})
	})
}

// UnloadImageEmbeddings releases the image embedding engine.
func (m *Manager) UnloadImageEmbeddings() error {
	return m.unloaded(NameImageEmbedding, m.imageEmbed.Unload())
}

func (m *Manager) initReranker(ctx context.Context) (string, error) {
	return m.initBackend(NameReranker, "", msgRerankInitAlready, func() error {
		return m.rerank.Init(ctx, func() (engine.Scorer, error) {
			p, err := resolveModel(m.cfg.RerankModelPath)
			if err != nil {
				return nil, err
			}
			return m.rt.LoadScorer(m.loadOptions(p, m.cfg.RerankDevice))
		})
	})
}

// InitDB connects the vector store, first loading the text embedding and
// reranking engines when they are not already live.
func (m *Manager) InitDB(ctx context.Context) (string, error) {
	if m.db.State().Live() {
		return "", reject(msgDBInitAlready, backend.ErrAlreadyInitialized(NameDB))
	}
	if !m.embed.State().Live() {
		if _, err := m.InitEmbeddings(ctx); err != nil && !IsAlreadyInitialized(err) {
			return "", err
		}
	}
	if !m.rerank.State().Live() {
		if _, err := m.initReranker(ctx); err != nil && !IsAlreadyInitialized(err) {
			return "", err
		}
	}
	dsn := m.cfg.DBConnection
	return m.initBackend(NameDB, msgDBInitOK, msgDBInitAlready, func() error {
		if err := config.EnsureDataDir(dsn); err != nil {
			return err
		}
		return m.db.Connect(ctx, dsn)
	})
}

// UnloadDB closes the vector store connection.
func (m *Manager) UnloadDB() error { return m.unloaded(NameDB, m.db.Close()) }

// Close unloads every backend.
func (m *Manager) Close() error {
	var errs []error
	for _, unload := range []func() error{
		m.llm.Unload,
		m.vlm.Unload,
		m.embed.Unload,
		m.imageEmbed.Unload,
		m.rerank.Unload,
		m.db.Close,
	} {
		if err := unload(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
