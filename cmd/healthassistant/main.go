// Command healthassistant runs the grounded-chat HTTP server: the chat
// orchestrator, the health tool catalog, and the document ingestion
// pipeline, wired to either the in-memory store or Postgres depending on
// STORE_URL.
//
// Process-wide singletons are built once here and passed down; shutdown
// handlers are registered by phase and the HTTP server runs until a
// signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/yourorg/healthassistant/internal/api"
	"github.com/yourorg/healthassistant/internal/artifacts"
	"github.com/yourorg/healthassistant/internal/chat"
	"github.com/yourorg/healthassistant/internal/config"
	"github.com/yourorg/healthassistant/internal/infra"
	"github.com/yourorg/healthassistant/internal/ingest"
	"github.com/yourorg/healthassistant/internal/llm"
	"github.com/yourorg/healthassistant/internal/observability"
	"github.com/yourorg/healthassistant/internal/store"
	"github.com/yourorg/healthassistant/internal/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "healthassistant:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  getenvDefault("LOG_LEVEL", "info"),
		Format: getenvDefault("LOG_FORMAT", "json"),
	})
	metrics := observability.NewMetrics()
	slogger := logger.Slog()

	stores, err := buildStores(cfg)
	if err != nil {
		return fmt.Errorf("build stores: %w", err)
	}

	gateway := llm.New(llm.Config{
		BaseURL:         cfg.InferenceHost,
		ChatModel:       cfg.InferenceChatModel,
		ExtractionModel: cfg.InferenceExtractionModel,
		Timeout:         cfg.InferenceTimeout,
	})

	reader := store.NewReader(stores)
	catalog, err := tools.New(reader, chat.OwnerResolver)
	if err != nil {
		return fmt.Errorf("build tool catalog: %w", err)
	}

	orchestrator := chat.New(stores.Sessions, stores.Messages, gateway, catalog, cfg.InferenceChatModel)

	uploads, err := artifacts.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("build upload store: %w", err)
	}

	extractor := ingest.NewExtractor(gateway, cfg.InferenceExtractionModel)
	ocrClient := ingest.NewHTTPOCRClient(cfg.OCRServiceURL)
	pipeline := ingest.New(ingest.Config{Workers: 2, Metrics: metrics}, stores.Documents, stores.Labs, ocrClient, extractor, slogger)

	if err := requeuePendingDocuments(context.Background(), stores.Documents, pipeline, slogger); err != nil {
		return fmt.Errorf("requeue pending documents: %w", err)
	}

	server := api.New(api.Config{
		Documents:    stores.Documents,
		Labs:         stores.Labs,
		Symptoms:     stores.Symptoms,
		Orchestrator: orchestrator,
		Pipeline:     pipeline,
		Gateway:      gateway,
		Uploads:      uploads,
		Logger:       logger,
		Metrics:      metrics,
	})

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(),
	}

	shutdown := infra.NewShutdownCoordinator(30*time.Second, slogger)
	shutdown.RegisterService("ingestion-pipeline", func(ctx context.Context) error {
		pipeline.Stop()
		return nil
	})
	shutdown.RegisterConnection("http-server", func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})
	shutdown.RegisterConnection("store", func(ctx context.Context) error {
		return stores.Close()
	})

	done := shutdown.OnSignal(os.Interrupt, syscall.SIGTERM)

	slogger.Info("healthassistant: listening", "addr", cfg.HTTPAddr, "memory_store", cfg.UsesMemoryStore())
	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		return err
	case <-done:
		shutdown.Shutdown(context.Background())
		return <-serveErr
	}
}

// requeuePendingDocuments recovers uploads an earlier process instance
// never finished processing: anything still in "uploading" or "parsing"
// at startup gets re-enqueued, relying on the pipeline's own idempotent
// redelivery check to make this safe even if the prior instance was
// mid-stage rather than never-started.
func requeuePendingDocuments(ctx context.Context, documents store.DocumentStore, pipeline *ingest.Pipeline, logger *slog.Logger) error {
	pending, err := documents.ListPending(ctx)
	if err != nil {
		return err
	}
	for _, doc := range pending {
		if !pipeline.Enqueue(ctx, doc.ID) {
			logger.Error("healthassistant: failed to requeue pending document at startup", "document_id", doc.ID)
			continue
		}
		logger.Info("healthassistant: requeued pending document from a prior run", "document_id", doc.ID, "status", doc.Status)
	}
	return nil
}

func buildStores(cfg config.Config) (store.Set, error) {
	if cfg.UsesMemoryStore() {
		return store.NewMemoryStores(), nil
	}
	return store.NewPostgresStores(cfg.StoreURL, store.DefaultPostgresConfig())
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
