// Package scoring fuses vector similarity and lexical relevance into a
// single ranked candidate list.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aneven/knowd/internal/metrics"
	"github.com/aneven/knowd/internal/vector"
)

// ErrEmptyResult means neither retrieval signal produced candidates: the
// vector backend failed or returned nothing AND the keyword index had no
// lexical match.
var ErrEmptyResult = errors.New("no retrieval signal available")

// Embedder turns query text into a vector, typically through the embedding
// cache so concurrent identical queries share one upstream call.
type Embedder interface {
	GetOrCompute(ctx context.Context, text string) ([]float32, error)
}

// KeywordScorer provides lexical scores per document for a query, plus each
// document's timestamp for recency tie-breaking.
type KeywordScorer interface {
	Score(query string) map[string]float64
	CreatedAt(id string) time.Time
	Empty() bool
}

// Candidate is one scored chunk. Component scores are retained so callers
// can explain a ranking.
type Candidate struct {
	ChunkID      string
	VectorScore  float64
	KeywordScore float64
	Combined     float64
	CreatedAt    time.Time
}

// Less orders candidates: combined score descending, then most recent
// document first, then chunk ID ascending for a stable total order.
func (c Candidate) Less(other Candidate) bool {
	if c.Combined != other.Combined {
		return c.Combined > other.Combined
	}
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.After(other.CreatedAt)
	}
	return c.ChunkID < other.ChunkID
}

// Result is the ranked output of a single scoring pass. Degraded is set when
// the vector signal was unavailable and ranking fell back to keywords only.
type Result struct {
	Candidates []Candidate
	Degraded   bool
}

// HybridScorer ranks chunks by a weighted combination of vector and keyword
// scores. When one signal is unavailable the other's weight is renormalized
// to 1.0 so combined scores stay in [0, 1].
type HybridScorer struct {
	embedder      Embedder
	searcher      vector.Searcher
	keywords      KeywordScorer
	vectorWeight  float64
	keywordWeight float64
	metrics       *metrics.Collector
	log           *slog.Logger
}

// New creates a HybridScorer. Weights must be non-negative and sum to 1.0;
// config validation enforces that before wiring.
func New(embedder Embedder, searcher vector.Searcher, keywords KeywordScorer, vectorWeight, keywordWeight float64, m *metrics.Collector, log *slog.Logger) *HybridScorer {
	if log == nil {
		log = slog.Default()
	}
	return &HybridScorer{
		embedder:      embedder,
		searcher:      searcher,
		keywords:      keywords,
		vectorWeight:  vectorWeight,
		keywordWeight: keywordWeight,
		metrics:       m,
		log:           log,
	}
}

// Score ranks up to limit chunks for one normalized query. Categories
// restrict the vector search; lexical candidates outside them are filtered
// downstream with the rest of access control.
//
// Degradation rules: a vector failure falls back to keyword-only ranking
// (Degraded=true); an empty keyword signal falls back to vector-only; both
// empty returns ErrEmptyResult.
func (s *HybridScorer) Score(ctx context.Context, query string, categories []string, limit int) (Result, error) {
	if limit <= 0 {
		return Result{}, fmt.Errorf("limit must be positive, got %d", limit)
	}

	vectorHits, vectorErr := s.vectorScores(ctx, query, categories, limit)
	keywordScores := s.keywords.Score(query)

	if vectorErr != nil {
		s.log.Warn("vector search unavailable, keyword-only ranking", "error", vectorErr)
		if s.metrics != nil {
			s.metrics.SetUpstreamConnected(false)
		}
	} else if s.metrics != nil {
		s.metrics.SetUpstreamConnected(true)
	}

	if len(vectorHits) == 0 && len(keywordScores) == 0 {
		return Result{}, ErrEmptyResult
	}

	wv, wk := s.vectorWeight, s.keywordWeight
	degraded := false
	switch {
	case len(vectorHits) == 0:
		wv, wk = 0, 1
		degraded = vectorErr != nil
	case len(keywordScores) == 0:
		wv, wk = 1, 0
	}

	candidates := make([]Candidate, 0, len(vectorHits)+len(keywordScores))
	seen := make(map[string]bool, len(vectorHits))
	for id, n := range vectorHits {
		ks := keywordScores[id]
		candidates = append(candidates, Candidate{
			ChunkID:      id,
			VectorScore:  n.Score,
			KeywordScore: ks,
			Combined:     wv*n.Score + wk*ks,
			CreatedAt:    n.CreatedAt,
		})
		seen[id] = true
	}
	for id, ks := range keywordScores {
		if seen[id] {
			continue
		}
		candidates = append(candidates, Candidate{
			ChunkID:      id,
			KeywordScore: ks,
			Combined:     wk * ks,
			CreatedAt:    s.keywords.CreatedAt(id),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Less(candidates[j])
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	return Result{Candidates: candidates, Degraded: degraded}, nil
}

// vectorScores embeds the query and runs nearest-neighbor search, fetching
// 2x the limit so downstream access filtering has headroom.
func (s *HybridScorer) vectorScores(ctx context.Context, query string, categories []string, limit int) (map[string]vector.Neighbor, error) {
	vec, err := s.embedder.GetOrCompute(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	neighbors, err := s.searcher.NearestNeighbors(ctx, vec, limit*2, categories)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}

	hits := make(map[string]vector.Neighbor, len(neighbors))
	for _, n := range neighbors {
		hits[n.ChunkID] = n
	}
	return hits, nil
}
