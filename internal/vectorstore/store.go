// Package vectorstore persists embeddings in SQLite and answers brute-force
// cosine similarity queries over them.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryDSN opens a private in-memory database (used by tests).
const MemoryDSN = ":memory:"

// schema is applied on every Open; statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS vectors (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		collection TEXT NOT NULL,
		content    TEXT NOT NULL,
		dim        INTEGER NOT NULL,
		embedding  BLOB NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vectors_collection_seq ON vectors (collection, seq)`,
}

// Store is a SQLite-backed vector table. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Match is one similarity search hit.
type Match struct {
	ID      string
	Content string
	Score   float32
	// Seq is the insertion sequence number; lower was stored earlier.
	Seq int64
}

// Open opens (or creates) the database named by dsn, which is MemoryDSN, a
// file path or a file: URI. The parent directory must exist.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty connection string")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection avoids "database is locked" and keeps :memory: coherent.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Insert stores contents[i] with vectors[i] in collection inside one
// transaction. Mismatched lengths are rejected before anything is written.
func (s *Store) Insert(ctx context.Context, collection string, contents []string, vectors [][]float32) error {
	if len(contents) != len(vectors) {
		return fmt.Errorf("%d contents but %d vectors", len(contents), len(vectors))
	}
	if len(contents) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (id, collection, content, dim, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, c := range contents {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), collection, c, len(vectors[i]), encodeFloat32s(vectors[i]), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting record %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Search scores the most recent corpusSize entries of collection against
// vector and returns the best topK. Order is decreasing score; equal scores
// keep insertion order. Entries whose dimension differs from vector are skipped.
func (s *Store) Search(ctx context.Context, collection string, corpusSize int, vector []float32, topK int) ([]Match, error) {
	if corpusSize <= 0 || topK <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, content, embedding FROM vectors
		WHERE collection = ? AND dim = ?
		ORDER BY seq DESC LIMIT ?`, collection, len(vector), corpusSize)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)
	var matches []Match
	var buf []float32
	for rows.Next() {
		var m Match
		var blob []byte
		if err := rows.Scan(&m.Seq, &m.ID, &m.Content, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", m.ID, err)
		}
		m.Score = cosine(vector, buf, queryNorm)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Seq < matches[j].Seq
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Count returns the number of entries in collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors WHERE collection = ?", collection).Scan(&n)
	return n, err
}

func encodeFloat32s(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// decodeFloat32sInto decodes into dst, reusing its capacity.
func decodeFloat32sInto(dst []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	n := len(b) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return dst, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func cosine(q, v []float32, qNorm float64) float32 {
	vNorm := norm(v)
	if qNorm == 0 || vNorm == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	return float32(dot / (qNorm * vNorm))
}
