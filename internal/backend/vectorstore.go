package backend

import (
	"context"
	"fmt"
	"sync"

	"ragd/internal/vectorstore"
)

// DefaultRetrieveTopK is the number of matches returned per query.
const DefaultRetrieveTopK = 3

// VectorStore wraps the vector store connection.
type VectorStore struct {
	slot *slot[*vectorstore.Store]
	topK int
}

// NewVectorStore returns a STOPPED vector store backend returning topK
// matches per query (DefaultRetrieveTopK when <= 0).
func NewVectorStore(name string, topK int) *VectorStore {
	if topK <= 0 {
		topK = DefaultRetrieveTopK
	}
	return &VectorStore{slot: newSlot[*vectorstore.Store](name), topK: topK}
}

func (v *VectorStore) Name() string { return v.slot.name }

func (v *VectorStore) State() State { return v.slot.state() }

// Connect opens the store named by dsn. A failure leaves the backend in ERR.
func (v *VectorStore) Connect(ctx context.Context, dsn string) error {
	return v.slot.init(ctx, func() (*vectorstore.Store, error) {
		st, err := vectorstore.Open(ctx, dsn)
		if err != nil {
			return nil, connectionError{dsn: dsn, err: err}
		}
		return st, nil
	})
}

// Count returns the rows persisted in collection, including rows written by
// earlier processes. It does not take admission and so works while the store
// is RUNNING.
func (v *VectorStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := v.slot.with(func(st *vectorstore.Store) error {
		var err error
		n, err = st.Count(ctx, collection)
		return err
	})
	return n, err
}

// Close releases the connection.
func (v *VectorStore) Close() error { return v.slot.shutdown(true, nil, nil) }

// StoreLease is an admitted vector store. Release must be called.
type StoreLease struct {
	v     *VectorStore
	once  sync.Once
	epoch uint64
}

// Acquire admits one unit of work (IDLE to RUNNING).
func (v *VectorStore) Acquire() (*StoreLease, error) {
	epoch, err := v.slot.admit()
	if err != nil {
		return nil, err
	}
	return &StoreLease{v: v, epoch: epoch}, nil
}

// Release returns the backend to IDLE.
func (l *StoreLease) Release() { l.once.Do(func() { l.v.slot.release(l.epoch) }) }

// Store persists contents with their vectors. Nothing is written unless the
// arrays have equal length and every vector has the same dimension.
func (l *StoreLease) Store(ctx context.Context, collection string, contents []string, vectors [][]float32) error {
	if len(contents) != len(vectors) {
		return dimensionMismatchError{msg: fmt.Sprintf("%d contents but %d vectors", len(contents), len(vectors))}
	}
	for i := 1; i < len(vectors); i++ {
		if len(vectors[i]) != len(vectors[0]) {
			return dimensionMismatchError{msg: fmt.Sprintf("vector %d has dimension %d, want %d", i, len(vectors[i]), len(vectors[0]))}
		}
	}
	return l.v.slot.with(func(st *vectorstore.Store) error {
		return st.Insert(ctx, collection, contents, vectors)
	})
}

// Retrieve searches the most recent corpusSize entries of collection for each
// query vector and concatenates the matched contents in query order.
func (l *StoreLease) Retrieve(ctx context.Context, collection string, corpusSize int, queries []string, vectors [][]float32) ([]string, error) {
	if len(queries) != len(vectors) {
		return nil, dimensionMismatchError{msg: fmt.Sprintf("%d queries but %d vectors", len(queries), len(vectors))}
	}
	var out []string
	err := l.v.slot.with(func(st *vectorstore.Store) error {
		for _, vec := range vectors {
			matches, err := st.Search(ctx, collection, corpusSize, vec, l.v.topK)
			if err != nil {
				return err
			}
			for _, m := range matches {
				out = append(out, m.Content)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// Store admits, stores and releases.
func (v *VectorStore) Store(ctx context.Context, collection string, contents []string, vectors [][]float32) error {
	l, err := v.Acquire()
	if err != nil {
		return err
	}
	defer l.Release()
	return l.Store(ctx, collection, contents, vectors)
}

// Retrieve admits, retrieves and releases.
func (v *VectorStore) Retrieve(ctx context.Context, collection string, corpusSize int, queries []string, vectors [][]float32) ([]string, error) {
	l, err := v.Acquire()
	if err != nil {
		return nil, err
	}
	defer l.Release()
	return l.Retrieve(ctx, collection, corpusSize, queries, vectors)
}
