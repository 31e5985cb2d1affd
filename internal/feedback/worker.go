package feedback

import (
	"context"
	"log/slog"
	"time"
)

// Worker periodically runs the training pipeline so corrections take effect
// without waiting for a manual process call.
type Worker struct {
	pipeline *Pipeline
	interval time.Duration
	log      *slog.Logger
}

// NewWorker creates a Worker. A non-positive interval falls back to 30s.
func NewWorker(pipeline *Pipeline, interval time.Duration, log *slog.Logger) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{pipeline: pipeline, interval: interval, log: log}
}

// Run processes feedback on the configured interval until ctx is canceled.
// One pass runs immediately on start.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("feedback worker started", "interval", w.interval)
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("feedback worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single processing pass. Errors are logged, not fatal:
// the next tick retries whatever is still unprocessed.
func (w *Worker) RunOnce(ctx context.Context) {
	report, err := w.pipeline.Process(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.log.Error("feedback processing failed", "error", err)
		return
	}
	if report.Processed > 0 {
		w.log.Info("feedback pass complete",
			"processed", report.Processed, "pairs_created", report.PairsCreated)
	}
}
