// Package engine orchestrates a query end to end: validation, cache lookup,
// expansion, hybrid scoring across variants, role filtering, generation, and
// correction substitution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aneven/knowd/internal/access"
	"github.com/aneven/knowd/internal/cache"
	"github.com/aneven/knowd/internal/metrics"
	"github.com/aneven/knowd/internal/query"
	"github.com/aneven/knowd/internal/scoring"
	"github.com/aneven/knowd/internal/storage"
)

// ErrValidation wraps all request validation failures.
var ErrValidation = errors.New("invalid request")

// maxResultsCeiling is the hard upper bound on requested results.
const maxResultsCeiling = 20

// scoreConcurrency bounds how many query variants score in parallel.
const scoreConcurrency = 4

// Scorer ranks chunks for one query variant.
type Scorer interface {
	Score(ctx context.Context, q string, categories []string, limit int) (scoring.Result, error)
}

// Expander rewrites a query into variants. Best-effort: the zero Expansion
// means retrieval proceeds on the original query alone.
type Expander interface {
	Expand(ctx context.Context, normalized string) query.Expansion
}

// Generator produces the final answer from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Improver substitutes corrected answers for similar enough past queries.
type Improver interface {
	Improve(rawQuery string) (string, bool, error)
}

// ChunkStore fetches chunk bodies for scored IDs.
type ChunkStore interface {
	GetChunksByIDs(ids []string) ([]storage.Chunk, error)
}

// Request is one retrieval query. MaxResults 0 means the configured default.
// UseExpansion and UseCache default to true at the API boundary; NewRequest
// returns a Request with them set.
type Request struct {
	Query        string `json:"query"`
	Role         string `json:"role"`
	MaxResults   int    `json:"max_results"`
	UseExpansion bool   `json:"use_expansion"`
	UseCache     bool   `json:"use_cache"`
}

// NewRequest returns a Request with expansion and caching enabled, the
// default behavior. JSON decoding on top of it preserves absent fields.
func NewRequest() Request {
	return Request{UseExpansion: true, UseCache: true}
}

// Source is one supporting chunk in a response.
type Source struct {
	ChunkID  string  `json:"chunk_id"`
	Content  string  `json:"content"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Response is a fully assembled answer.
type Response struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	Cached    bool     `json:"cached"`
	Degraded  bool     `json:"degraded"`
	Corrected bool     `json:"corrected"`
}

// Engine wires the retrieval components together.
type Engine struct {
	scorer    Scorer
	expander  Expander
	generator Generator
	improver  Improver
	chunks    ChunkStore
	access    *access.Filter
	responses *cache.ResponseCache
	metrics   *metrics.Collector

	defaultResults int
	genTimeout     time.Duration
	log            *slog.Logger
}

// Options carries the tunables for New.
type Options struct {
	DefaultResults    int           // default 5
	GenerationTimeout time.Duration // default 30s
}

// New creates an Engine. The improver and expander may be nil; both degrade
// to no-ops.
func New(scorer Scorer, expander Expander, generator Generator, improver Improver,
	chunks ChunkStore, acc *access.Filter, responses *cache.ResponseCache,
	m *metrics.Collector, opts Options, log *slog.Logger) *Engine {

	if opts.DefaultResults <= 0 {
		opts.DefaultResults = 5
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		scorer:         scorer,
		expander:       expander,
		generator:      generator,
		improver:       improver,
		chunks:         chunks,
		access:         acc,
		responses:      responses,
		metrics:        m,
		defaultResults: opts.DefaultResults,
		genTimeout:     opts.GenerationTimeout,
		log:            log,
	}
}

// Query answers one request. Validation failures wrap ErrValidation; an
// exhausted retrieval (no signal at all) surfaces scoring.ErrEmptyResult.
func (e *Engine) Query(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	limit, err := e.validate(req)
	if err != nil {
		return Response{}, err
	}

	normalized := query.Normalize(req.Query)
	key := cache.ResponseKey(normalized, req.Role, limit)
	if req.UseCache {
		if v, ok := e.responses.Get(key); ok {
			resp := v.(Response)
			resp.Cached = true
			e.observe(start)
			return resp, nil
		}
	}

	categories := e.access.Categories(req.Role)

	var exp query.Expansion
	if e.expander != nil && req.UseExpansion {
		exp = e.expander.Expand(ctx, normalized)
	}
	variants := exp.Variants(normalized)
	if len(exp.Terms) > 0 {
		variants = append(variants, normalized+" "+strings.Join(exp.Terms, " "))
	}
	if exp.Category != "" {
		e.log.Debug("query expansion suggested category", "category", exp.Category)
	}

	merged, degraded, err := e.scoreVariants(ctx, variants, categories, limit)
	if err != nil {
		return Response{}, err
	}

	sources, err := e.resolveSources(req.Role, merged)
	if err != nil {
		return Response{}, err
	}

	resp := Response{Sources: sources, Degraded: degraded}

	if e.improver != nil {
		if corrected, ok, err := e.improver.Improve(req.Query); err != nil {
			e.log.Warn("response improver unavailable", "error", err)
		} else if ok {
			resp.Answer = corrected
			resp.Corrected = true
		}
	}

	genFailed := false
	if !resp.Corrected {
		answer, err := e.generate(ctx, req.Query, sources)
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			e.log.Warn("generation failed, returning sources only", "error", err)
			resp.Answer = degradedAnswer(sources)
			resp.Degraded = true
			genFailed = true
		} else {
			resp.Answer = answer
		}
	}

	if req.UseCache && !resp.Degraded && !genFailed {
		e.responses.Put(key, resp)
	}
	e.observe(start)
	return resp, nil
}

func (e *Engine) validate(req Request) (int, error) {
	if strings.TrimSpace(req.Query) == "" {
		return 0, fmt.Errorf("%w: query is required", ErrValidation)
	}
	if !e.access.ValidRole(req.Role) {
		return 0, fmt.Errorf("%w: unknown role %q", ErrValidation, req.Role)
	}
	limit := req.MaxResults
	if limit == 0 {
		limit = e.defaultResults
	}
	if limit < 1 || limit > maxResultsCeiling {
		return 0, fmt.Errorf("%w: max_results must be between 1 and %d, got %d", ErrValidation, maxResultsCeiling, req.MaxResults)
	}
	return limit, nil
}

// scoreVariants scores every variant concurrently and merges candidates by
// chunk ID, keeping the highest combined score seen for each.
func (e *Engine) scoreVariants(ctx context.Context, variants, categories []string, limit int) ([]scoring.Candidate, bool, error) {
	results := make([]scoring.Result, len(variants))
	errs := make([]error, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreConcurrency)
	for i, v := range variants {
		g.Go(func() error {
			res, err := e.scorer.Score(gctx, v, categories, limit)
			if err != nil {
				errs[i] = err
				return nil // a failed variant never sinks the query
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	best := make(map[string]scoring.Candidate)
	var degraded, anyOK bool
	for i := range variants {
		if errs[i] != nil {
			if !errors.Is(errs[i], scoring.ErrEmptyResult) {
				e.log.Warn("variant scoring failed", "variant", variants[i], "error", errs[i])
			}
			continue
		}
		anyOK = true
		if results[i].Degraded {
			degraded = true
		}
		for _, c := range results[i].Candidates {
			if cur, ok := best[c.ChunkID]; !ok || c.Combined > cur.Combined {
				best[c.ChunkID] = c
			}
		}
	}
	if !anyOK || len(best) == 0 {
		return nil, false, scoring.ErrEmptyResult
	}

	merged := make([]scoring.Candidate, 0, len(best))
	for _, c := range best {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Less(merged[j])
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, degraded, nil
}

// resolveSources loads chunk bodies for the merged candidates and drops any
// the role may not see. Filtering only shrinks the list; no backfill.
func (e *Engine) resolveSources(role string, merged []scoring.Candidate) ([]Source, error) {
	ids := make([]string, len(merged))
	scoreByID := make(map[string]float64, len(merged))
	for i, c := range merged {
		ids[i] = c.ChunkID
		scoreByID[c.ChunkID] = c.Combined
	}

	chunks, err := e.chunks.GetChunksByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	byID := make(map[string]storage.Chunk, len(chunks))
	for _, ch := range chunks {
		byID[ch.ID] = ch
	}

	ordered := make([]storage.Chunk, 0, len(merged))
	for _, c := range merged {
		if ch, ok := byID[c.ChunkID]; ok {
			ordered = append(ordered, ch)
		}
	}
	visible := e.access.FilterChunks(role, ordered)

	sources := make([]Source, len(visible))
	for i, ch := range visible {
		sources[i] = Source{
			ChunkID:  ch.ID,
			Content:  ch.Content,
			Category: ch.Category,
			Score:    scoreByID[ch.ID],
		}
	}
	return sources, nil
}

// generate builds the grounded prompt and calls the generation model under
// its own timeout.
func (e *Engine) generate(ctx context.Context, rawQuery string, sources []Source) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.genTimeout)
	defer cancel()

	var b strings.Builder
	b.WriteString("Answer the question using only the context below. ")
	b.WriteString("If the context does not contain the answer, say so.\n\nContext:\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, s.Content)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", rawQuery)

	return e.generator.Generate(ctx, b.String())
}

// degradedAnswer is returned when generation is unavailable: the caller still
// gets the ranked source material.
func degradedAnswer(sources []Source) string {
	if len(sources) == 0 {
		return "The answer could not be generated and no supporting documents were found."
	}
	return fmt.Sprintf("The answer could not be generated right now. %d relevant documents were found; see sources.", len(sources))
}

func (e *Engine) observe(start time.Time) {
	if e.metrics != nil {
		e.metrics.ObserveQuery(time.Since(start))
	}
}

// Metrics returns the current counter snapshot.
func (e *Engine) Metrics() metrics.Snapshot {
	if e.metrics == nil {
		return metrics.Snapshot{}
	}
	return e.metrics.Snapshot()
}
