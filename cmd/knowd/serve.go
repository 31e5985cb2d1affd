package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/aneven/knowd/internal/access"
	"github.com/aneven/knowd/internal/api"
	"github.com/aneven/knowd/internal/cache"
	"github.com/aneven/knowd/internal/config"
	"github.com/aneven/knowd/internal/engine"
	"github.com/aneven/knowd/internal/feedback"
	"github.com/aneven/knowd/internal/keyword"
	"github.com/aneven/knowd/internal/metrics"
	"github.com/aneven/knowd/internal/provider"
	"github.com/aneven/knowd/internal/query"
	"github.com/aneven/knowd/internal/scoring"
	"github.com/aneven/knowd/internal/storage"
	"github.com/aneven/knowd/internal/vector"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the knowd server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "knowd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	roles, err := config.LoadRoles(cfg.Storage.RolesFile)
	if err != nil {
		return fmt.Errorf("loading roles: %w", err)
	}
	log.Info("role table loaded", "roles", len(roles.Names()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ollama := provider.New(cfg.Ollama.BaseURL, cfg.Ollama.GenModel, cfg.Ollama.EmbedModel)
	if !ollama.IsRunning(ctx) {
		printWarning("Ollama not reachable at %s, serving with keyword-only retrieval until it comes up", cfg.Ollama.BaseURL)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the keyword index from stored chunks.
	kwIndex := keyword.NewIndex()
	chunks, err := store.AllChunks()
	if err != nil {
		return fmt.Errorf("loading chunks for keyword index: %w", err)
	}
	docs := make([]keyword.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = keyword.Document{ID: ch.ID, Text: ch.Content, CreatedAt: ch.CreatedAt}
	}
	kwIndex.Rebuild(docs)
	log.Info("keyword index built", "documents", kwIndex.Size())

	collector := metrics.NewCollector()
	embedCache := cache.NewEmbeddingCache(ollama.Embed, cfg.Cache.EmbeddingTTL, collector)
	respCache := cache.NewResponseCache(cfg.Cache.ResponseTTL)

	scorer := scoring.New(
		embedCache,
		vector.NewSQLIndex(store.DB()),
		kwIndex,
		cfg.Retrieval.VectorWeight,
		cfg.Retrieval.KeywordWeight,
		collector,
		log,
	)
	expander := query.NewExpander(ollama, cfg.Expansion.Timeout, cfg.Expansion.MaxAlternatives, cfg.Expansion.MaxTerms, log)
	improver := feedback.NewImprover(store, cfg.Training.ImproverThreshold, cfg.Training.ImproverMinQuality)
	filter := access.NewFilter(roles)

	eng := engine.New(scorer, expander, ollama, improver, store, filter, respCache, collector,
		engine.Options{DefaultResults: cfg.Retrieval.MaxResults}, log)

	fbStore := feedback.NewStore(store, filter, log)
	pipeline := feedback.NewPipeline(store, respCache, log)

	// Background worker keeps corrections flowing into training data.
	worker := feedback.NewWorker(pipeline, cfg.Training.WorkerInterval, log)
	go worker.Run(ctx)

	deps := api.Deps{
		Engine:    eng,
		Feedback:  fbStore,
		Pipeline:  pipeline,
		Store:     store,
		Limits:    roles,
		Provider:  ollama,
		Token:     cfg.Server.APIToken,
		ExportDir: cfg.Training.ExportDir,
		Log:       log,
	}

	// MCP server on stdio.
	stdioSrv := mcpserver.NewStdioServer(api.NewMCPServer(deps))
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("MCP stdio server error", "error", err)
		}
	}()
	log.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "knowd listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
