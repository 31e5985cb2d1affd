// Package api exposes the retrieval engine over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aneven/knowd/internal/engine"
	"github.com/aneven/knowd/internal/feedback"
	"github.com/aneven/knowd/internal/scoring"
	"github.com/aneven/knowd/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Pinger reports upstream model server reachability for health checks.
type Pinger interface {
	IsRunning(ctx context.Context) bool
}

type Deps struct {
	Engine    *engine.Engine
	Feedback  *feedback.Store
	Pipeline  *feedback.Pipeline
	Store     *storage.Store
	Limits    RateLimits
	Provider  Pinger
	Token     string
	ExportDir string
	Log       *slog.Logger
}

// NewHandler returns the HTTP API. /health is open; everything else requires
// the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		limiter := newRoleLimiter(deps.Limits)
		r.Post("/query", handleQuery(deps, limiter))
		r.Post("/feedback", handleFeedback(deps))
		r.Post("/training/process", handleTrainingProcess(deps))
		r.Get("/training/stats", handleTrainingStats(deps))
		r.Post("/training/export", handleTrainingExport(deps))
		r.Post("/training/synthetic", handleTrainingSynthetic(deps))
		r.Get("/metrics", handleMetrics(deps))
	})

	return r
}

func handleQuery(deps Deps, limiter *roleLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		// Decoding over NewRequest leaves use_expansion and use_cache
		// enabled when the body omits them.
		req := engine.NewRequest()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Role != "" && !limiter.Allow(req.Role) {
			httpError(w, http.StatusTooManyRequests, "rate_limit_error", "rate limit exceeded for role %q", req.Role)
			return
		}

		resp, err := deps.Engine.Query(r.Context(), req)
		if errors.Is(err, engine.ErrValidation) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if errors.Is(err, scoring.ErrEmptyResult) {
			writeJSON(w, engine.Response{
				Answer:  "No relevant documents were found for this query.",
				Sources: []engine.Source{},
			})
			return
		}
		if err != nil {
			internalError(w, deps.Log, "query failed", err)
			return
		}

		if resp.Sources == nil {
			resp.Sources = []engine.Source{}
		}
		writeJSON(w, resp)
	}
}

type feedbackRequest struct {
	Query      string `json:"query"`
	Response   string `json:"response"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
	Correction string `json:"correction"`
	Role       string `json:"role"`
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		rec, err := deps.Feedback.Collect(feedback.Submission{
			Query:      req.Query,
			Response:   req.Response,
			Rating:     req.Rating,
			Comment:    req.Comment,
			Correction: req.Correction,
			Role:       req.Role,
		})
		if errors.Is(err, feedback.ErrInvalid) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			internalError(w, deps.Log, "failed to save feedback", err)
			return
		}

		writeJSON(w, map[string]string{
			"id":    rec.ID,
			"state": string(rec.State),
		})
	}
}

func handleTrainingProcess(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Pipeline.Process(r.Context())
		if err != nil {
			internalError(w, deps.Log, "feedback processing failed", err)
			return
		}
		writeJSON(w, report)
	}
}

func handleTrainingStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fb, err := deps.Feedback.Stats()
		if err != nil {
			internalError(w, deps.Log, "failed to aggregate feedback", err)
			return
		}
		tr, err := deps.Pipeline.TrainingStats()
		if err != nil {
			internalError(w, deps.Log, "failed to aggregate training pairs", err)
			return
		}

		writeJSON(w, map[string]any{
			"feedback": map[string]any{
				"total":      fb.Total,
				"processed":  fb.Processed,
				"avg_rating": fb.AvgRating,
				"positive":   fb.Positive,
				"negative":   fb.Negative,
			},
			"training": map[string]any{
				"total_pairs":  tr.TotalPairs,
				"avg_quality":  tr.AvgQuality,
				"needs_review": tr.NeedsReview,
			},
		})
	}
}

type exportRequest struct {
	Format     string  `json:"format"`
	MinQuality float64 `json:"min_quality"`
}

func handleTrainingExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		req := exportRequest{Format: "jsonl"}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}

		report, err := deps.Pipeline.Export(deps.ExportDir, req.Format, req.MinQuality)
		if errors.Is(err, feedback.ErrInvalid) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			internalError(w, deps.Log, "export failed", err)
			return
		}
		writeJSON(w, report)
	}
}

type syntheticRequest struct {
	Input   string  `json:"input"`
	Output  string  `json:"output"`
	Quality float64 `json:"quality"`
}

func handleTrainingSynthetic(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req syntheticRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		pair, err := deps.Pipeline.AddSynthetic(req.Input, req.Output, req.Quality)
		if errors.Is(err, feedback.ErrInvalid) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			internalError(w, deps.Log, "failed to save synthetic pair", err)
			return
		}
		writeJSON(w, map[string]string{"id": pair.ID})
	}
}

func handleMetrics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Engine.Metrics())
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chunks, err := deps.Store.CountChunks()
		if err != nil {
			internalError(w, deps.Log, "storage unavailable", err)
			return
		}
		writeJSON(w, map[string]any{
			"status": "ok",
			"chunks": chunks,
			"ollama": deps.Provider.IsRunning(r.Context()),
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// internalError answers a 500 with a generic message. The full error chain is
// logged server-side only; callers never see internal detail like file paths
// or driver errors.
func internalError(w http.ResponseWriter, log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	httpError(w, http.StatusInternalServerError, "api_error", "%s", msg)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
