package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ragd/internal/engine"
)

// Reranker reorders candidate documents by relevance to a query.
type Reranker struct {
	slot *slot[engine.Scorer]
}

// NewReranker returns a STOPPED reranker.
func NewReranker(name string) *Reranker {
	return &Reranker{slot: newSlot[engine.Scorer](name)}
}

func (r *Reranker) Name() string { return r.slot.name }

func (r *Reranker) State() State { return r.slot.state() }

func (r *Reranker) Init(ctx context.Context, load Loader[engine.Scorer]) error {
	return r.slot.init(ctx, load)
}

func (r *Reranker) Unload() error { return r.slot.shutdown(true, nil, nil) }

// RerankLease is an admitted reranker. Release must be called.
type RerankLease struct {
	r     *Reranker
	once  sync.Once
	epoch uint64
}

// Acquire admits one unit of work (IDLE to RUNNING).
func (r *Reranker) Acquire() (*RerankLease, error) {
	epoch, err := r.slot.admit()
	if err != nil {
		return nil, err
	}
	return &RerankLease{r: r, epoch: epoch}, nil
}

// Release returns the backend to IDLE.
func (l *RerankLease) Release() { l.once.Do(func() { l.r.slot.release(l.epoch) }) }

// Compress returns the topK most relevant docs, best first. Equal scores keep
// input order. A topK above len(docs) is clamped; topK <= 0 is an error.
func (l *RerankLease) Compress(ctx context.Context, query string, docs []string, topK int) ([]string, error) {
	if topK <= 0 {
		return nil, rerankError{err: fmt.Errorf("top_k must be positive, got %d", topK)}
	}
	if len(docs) == 0 {
		return []string{}, nil
	}
	var scores []float32
	err := l.r.slot.with(func(s engine.Scorer) error {
		var err error
		scores, err = s.Score(ctx, query, docs)
		return err
	})
	if err != nil {
		if IsNotReady(err) {
			return nil, err
		}
		return nil, rerankError{err: err}
	}
	if len(scores) != len(docs) {
		return nil, rerankError{err: fmt.Errorf("engine returned %d scores for %d documents", len(scores), len(docs))}
	}
	idx := make([]int, len(docs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	topK = min(topK, len(docs))
	out := make([]string, topK)
	for i := range out {
		out[i] = docs[idx[i]]
	}
	return out, nil
}

// Compress admits, reranks and releases.
func (r *Reranker) Compress(ctx context.Context, query string, docs []string, topK int) ([]string, error) {
	l, err := r.Acquire()
	if err != nil {
		return nil, err
	}
	defer l.Release()
	return l.Compress(ctx, query, docs, topK)
}
