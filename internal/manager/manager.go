package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ragd/internal/backend"
	"ragd/internal/config"
	"ragd/internal/engine"
	"ragd/internal/imageutil"
)

// Backend names used in logs, events, metrics and /status.
const (
	NameLLM            = "llm"
	NameVLM            = "vlm"
	NameEmbedding      = "embedding"
	NameImageEmbedding = "image_embedding"
	NameReranker       = "reranker"
	NameDB             = "db"
)

// Collections in the vector store.
const (
	collectionText  = "text"
	collectionImage = "image"
)

// Manager is the process-wide orchestration state. Every backend always
// exists; a backend without a handle is STOPPED.
type Manager struct {
	cfg config.Config
	rt  engine.Runtime
	pub EventPublisher
	log zerolog.Logger

	llm        *backend.Stream[string]
	vlm        *backend.Vision
	embed      *backend.Encoder[string]
	imageEmbed *backend.Encoder[imageutil.Tensor]
	rerank     *backend.Reranker
	db         *backend.VectorStore

	mu         sync.RWMutex // guards the fields below
	chunkCount int
	imageCount int
	lastText   []string
	lastImages []string

	startTime time.Time
}

// New constructs a Manager using the build's engine runtime.
func New(cfg config.Config) *Manager {
	return NewWithConfig(ManagerConfig{Config: cfg})
}

// Config returns the immutable startup configuration.
func (m *Manager) Config() config.Config { return m.cfg }

// Ready reports whether any backend holds a live handle.
func (m *Manager) Ready() bool {
	for _, s := range m.states() {
		if s.state.Live() {
			return true
		}
	}
	return false
}

type namedState struct {
	name  string
	state backend.State
}

func (m *Manager) states() []namedState {
	return []namedState{
		{NameLLM, m.llm.State()},
		{NameVLM, m.vlm.State()},
		{NameEmbedding, m.embed.State()},
		{NameImageEmbedding, m.imageEmbed.State()},
		{NameReranker, m.rerank.State()},
		{NameDB, m.db.State()},
	}
}
