package manager

import (
	"time"

	"github.com/rs/zerolog"

	"ragd/internal/backend"
	"ragd/internal/config"
	"ragd/internal/engine"
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Config config.Config
	// Runtime creates engine handles; engine.NewRuntime() when nil.
	Runtime engine.Runtime
	// Publisher receives lifecycle events; dropped when nil.
	Publisher EventPublisher
	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		cfg: cfg.Config,
		rt:  cfg.Runtime,
		pub: cfg.Publisher,
		log: zerolog.Nop(),
	}
	if m.rt == nil {
		m.rt = engine.NewRuntime()
	}
	if m.pub == nil {
		m.pub = noopPublisher{}
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	opts := backend.StreamOptions{
		MultiRoundChat: m.cfg.EnableMultiRoundChat,
		Buffer:         m.cfg.StreamBuffer,
	}
	m.llm = backend.NewTextStream(NameLLM, opts)
	m.vlm = backend.NewVision(NameVLM, opts)
	m.embed = backend.NewTextEncoder(NameEmbedding)
	m.imageEmbed = backend.NewImageEncoder(NameImageEmbedding)
	m.rerank = backend.NewReranker(NameReranker)
	m.db = backend.NewVectorStore(NameDB, m.cfg.RetrieveTopK)
	m.startTime = time.Now()
	return m
}

func (m *Manager) generation() engine.GenerationConfig {
	return engine.GenerationConfig{
		MaxNewTokens:  m.cfg.MaxNewTokens,
		DoSample:      m.cfg.DoSample,
		TopK:          m.cfg.TopK,
		TopP:          m.cfg.TopP,
		Temperature:   m.cfg.Temperature,
		RepeatPenalty: m.cfg.RepeatPenalty,
	}
}

func (m *Manager) loadOptions(path, device string) engine.LoadOptions {
	return engine.LoadOptions{
		ModelPath:   path,
		Device:      device,
		Threads:     m.cfg.Threads,
		ContextSize: m.cfg.ContextSize,
		Generation:  m.generation(),
	}
}
