// Package app assembles the pipeline from its parts and owns the HTTP
// surface and consumer lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	ingestfeature "docbrain/features/ingest"
	"docbrain/features/query"
	"docbrain/internal/adapter/gemini"
	"docbrain/internal/answer"
	"docbrain/internal/config"
	"docbrain/internal/embedding"
	"docbrain/internal/ingest"
	"docbrain/internal/middleware"
	"docbrain/internal/retrieval"
	"docbrain/internal/text"
	"docbrain/internal/worker"
)

type App struct {
	Handler          http.Handler
	IngestService    *ingestfeature.Service
	DocumentConsumer *worker.DocumentConsumer

	port int
}

func New(cfg *config.Config, deps *Dependencies) (*App, error) {
	chunker, err := text.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}

	// Document and query embeddings carry distinct task types; the batching
	// client wraps only the document side since queries are single texts.
	docEmbedder := embedding.NewClient(
		gemini.NewDocumentEmbedder(deps.Gemini, cfg.EmbedModel),
		cfg.EmbedBatchSize, cfg.EmbedRetries, cfg.EmbedTimeout,
	)
	queryEmbedder := embedding.NewClient(
		gemini.NewQueryEmbedder(deps.Gemini, cfg.EmbedModel),
		cfg.EmbedBatchSize, cfg.EmbedRetries, cfg.EmbedTimeout,
	)

	// Feature: Ingest
	ingestRepo := ingestfeature.NewPostgresRepo(deps.DB)
	orchestrator := ingest.NewOrchestrator(chunker, docEmbedder, deps.VectorStore, ingestRepo, cfg.IngestWorkers)
	ingestService := ingestfeature.NewService(orchestrator, ingestRepo)
	ingestHandler := ingestfeature.NewHandler(ingestService)

	// Feature: Query
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	retrievalService := retrieval.NewService(queryEmbedder, deps.VectorStore, cfg.MinScore, cfg.DefaultTopK, cfg.MaxTopK, queryLogger)
	composer := answer.NewComposer(gemini.NewGenerator(deps.Gemini, cfg.GenerateModel, cfg.GenerateTimeout), cfg.MaxContextChars)
	queryHandler := query.NewHandler(retrievalService, composer, deps.VectorStore, ingestRepo, cfg.MaxAnswerTokens)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /ingest", middleware.CorrelationID(enableCORS(ingestHandler.Ingest)))
	mux.Handle("GET /documents", middleware.CorrelationID(enableCORS(ingestHandler.ListDocuments)))

	mux.Handle("POST /query", middleware.CorrelationID(enableCORS(queryHandler.Query)))
	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(queryHandler.Stats)))
	mux.HandleFunc("/health", queryHandler.Health)

	// Worker (NSQ Document Consumer)
	documentConsumer := worker.NewDocumentConsumer(ingestService, deps.NSQProducer)

	return &App{
		Handler:          mux,
		IngestService:    ingestService,
		DocumentConsumer: documentConsumer,
		port:             cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
