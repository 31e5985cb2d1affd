// Package vector provides nearest-neighbor search over chunk embeddings.
// The engine treats the index as an opaque service behind the Searcher
// interface; SQLIndex is the default backend, scanning the chunks table with
// brute-force cosine similarity.
package vector

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// Neighbor is one nearest-neighbor hit: a chunk ID with its similarity score
// normalized to [0, 1]. CreatedAt is carried along so equal scores rank the
// most recent document first.
type Neighbor struct {
	ChunkID   string
	Score     float64
	CreatedAt time.Time
}

// Searcher is the nearest-neighbor service interface. Implementations may
// fail or time out; callers fall back to keyword-only scoring.
type Searcher interface {
	NearestNeighbors(ctx context.Context, vec []float32, k int, categories []string) ([]Neighbor, error)
}

// Compile-time check that SQLIndex implements Searcher.
var _ Searcher = (*SQLIndex)(nil)

// SQLIndex performs brute-force cosine similarity search over the chunks
// table. Adequate up to roughly 100K chunks; beyond that an ANN-capable
// backend should implement Searcher instead.
type SQLIndex struct {
	db *sql.DB
}

// NewSQLIndex wraps an existing *sql.DB for vector search.
// The chunks table must already exist (created via migrations).
func NewSQLIndex(db *sql.DB) *SQLIndex {
	return &SQLIndex{db: db}
}

// NearestNeighbors scans chunk embeddings and returns the top-K most similar
// IDs. When categories is non-empty, only chunks in those categories are
// considered.
func (s *SQLIndex) NearestNeighbors(ctx context.Context, vec []float32, k int, categories []string) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}

	queryNorm := norm(vec)
	if queryNorm == 0 {
		return nil, nil
	}

	query := `SELECT id, embedding, created_at FROM chunks WHERE embedding IS NOT NULL`
	var args []any
	if len(categories) > 0 {
		query += ` AND category IN (?` + strings.Repeat(",?", len(categories)-1) + `)`
		for _, c := range categories {
			args = append(args, c)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	h := &neighborHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id, createdAt string
		var blob []byte
		if err := rows.Scan(&id, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}
		created, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", id, err)
		}

		score := cosine(vec, buf, queryNorm)
		if h.Len() < k {
			heap.Push(h, Neighbor{ChunkID: id, Score: score, CreatedAt: created})
		} else if score > (*h)[0].Score {
			(*h)[0] = Neighbor{ChunkID: id, Score: score, CreatedAt: created}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	// Pop ascending, fill descending.
	results := make([]Neighbor, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(Neighbor)
	}
	return results, nil
}

// decodeInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine computes cosine similarity clamped to [0, 1].
// aNorm is the precomputed L2 norm of vector a.
func cosine(a, b []float32, aNorm float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	sim := dot / (aNorm * bNorm)
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// neighborHeap is a min-heap of Neighbor ordered by Score.
// Used during the scan to track top-K candidates by ID only.
type neighborHeap []Neighbor

func (h neighborHeap) Len() int           { return len(h) }
func (h neighborHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h neighborHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x any)        { *h = append(*h, x.(Neighbor)) }
func (h *neighborHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
