package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/yourorg/healthassistant/internal/infra"
	"github.com/yourorg/healthassistant/internal/models"
	"github.com/yourorg/healthassistant/internal/observability"
	"github.com/yourorg/healthassistant/internal/store"
)

// Per-stage timeouts and the overall job ceiling.
const (
	ocrStageTimeout        = 120 * time.Second
	extractionStageTimeout = 180 * time.Second
	overallJobTimeout      = 600 * time.Second
)

// Job is the unit of work the pipeline's worker pool processes: one
// uploaded document's ID. Re-reading the document row on entry (rather
// than carrying a full snapshot) is what makes idempotent redelivery safe.
type Job struct {
	DocumentID string
}

// Pipeline wires the four ingestion stages behind a bounded worker pool.
type Pipeline struct {
	pool      *infra.WorkerPool[Job, struct{}]
	documents store.DocumentStore
	labs      store.LabResultStore
	ocr       OCRClient
	extractor *Extractor
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Config configures the pipeline's worker pool.
type Config struct {
	Workers   int // default 2
	QueueSize int

	// Metrics is optional; when set, per-stage outcomes and durations are
	// recorded.
	Metrics *observability.Metrics
}

// New builds and starts a Pipeline.
func New(cfg Config, documents store.DocumentStore, labs store.LabResultStore, ocr OCRClient, extractor *Extractor, logger *slog.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		documents: documents,
		labs:      labs,
		ocr:       ocr,
		extractor: extractor,
		logger:    logger,
		metrics:   cfg.Metrics,
	}
	p.pool = infra.NewWorkerPool(infra.WorkerPoolConfig[Job, struct{}]{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Processor: p.process,
	})
	p.pool.Start()
	// Drain results so workers never block on the results channel; job
	// outcomes live on the document row, not in the pool. The channel is
	// closed by Stop, which ends this goroutine.
	go func() {
		for res := range p.pool.Results() {
			if res.Error != nil {
				p.logger.Error("ingest: job errored", "document_id", res.Job.ID, "error", res.Error)
			}
		}
	}()
	return p
}

// Enqueue submits a document for processing. Returns false if the queue
// is full; the caller should treat that as a transient failure and the
// document stays in "uploading" for a later redelivery.
func (p *Pipeline) Enqueue(ctx context.Context, documentID string) bool {
	return p.pool.Submit(infra.Job[Job]{ID: documentID, Data: Job{DocumentID: documentID}, Context: ctx})
}

// Stop drains in-flight jobs and stops accepting new ones.
func (p *Pipeline) Stop() {
	p.pool.Stop()
}

// Stats exposes the underlying worker pool's counters for /metrics.
func (p *Pipeline) Stats() infra.WorkerPoolStats {
	return p.pool.Stats()
}

func (p *Pipeline) process(ctx context.Context, job Job) (struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, overallJobTimeout)
	defer cancel()

	doc, err := p.documents.Get(ctx, job.DocumentID)
	if err != nil {
		p.logger.Error("ingest: load document failed", "document_id", job.DocumentID, "error", err)
		return struct{}{}, err
	}

	// At-most-one-active-job-per-document: a redelivered job that finds
	// the document already past parsing exits immediately.
	if doc.Status != models.DocumentUploading && doc.Status != models.DocumentParsing {
		return struct{}{}, nil
	}

	rawText, err := timedStage(p, "parsing", func() (string, error) {
		return p.runOCRStage(ctx, doc)
	})
	if err != nil {
		p.fail(ctx, doc.ID, "parsing", err)
		return struct{}{}, nil
	}

	records, err := timedStage(p, "extracting", func() ([]extractedLab, error) {
		return p.runExtractionStage(ctx, doc, rawText)
	})
	if err != nil {
		p.fail(ctx, doc.ID, "extracting", err)
		return struct{}{}, nil
	}

	if _, err := timedStage(p, "persisting", func() (struct{}, error) {
		return struct{}{}, p.runPersistenceStage(ctx, doc, records)
	}); err != nil {
		p.fail(ctx, doc.ID, "persisting", err)
		return struct{}{}, nil
	}

	return struct{}{}, nil
}

func timedStage[T any](p *Pipeline, stage string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	if p.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failed"
		}
		p.metrics.RecordIngestionStage(stage, outcome, time.Since(start).Seconds())
	}
	return v, err
}

func (p *Pipeline) runOCRStage(ctx context.Context, doc *models.MedicalDocument) (string, error) {
	if err := p.documents.UpdateStatus(ctx, doc.ID, models.DocumentParsing, nil, nil); err != nil {
		return "", fmt.Errorf("transition to parsing: %w", err)
	}

	content, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return "", fmt.Errorf("read stored file: %w", err)
	}

	ocrCtx, cancel := context.WithTimeout(ctx, ocrStageTimeout)
	defer cancel()

	rawText, err := p.ocr.Convert(ocrCtx, filepath.Base(doc.FilePath), content)
	if err != nil {
		return "", fmt.Errorf("ocr convert: %w", err)
	}

	if err := p.documents.UpdateStatus(ctx, doc.ID, models.DocumentParsed, &rawText, nil); err != nil {
		return "", fmt.Errorf("transition to parsed: %w", err)
	}
	return rawText, nil
}

func (p *Pipeline) runExtractionStage(ctx context.Context, doc *models.MedicalDocument, rawText string) ([]extractedLab, error) {
	if err := p.documents.UpdateStatus(ctx, doc.ID, models.DocumentExtracting, nil, nil); err != nil {
		return nil, fmt.Errorf("transition to extracting: %w", err)
	}

	extractCtx, cancel := context.WithTimeout(ctx, extractionStageTimeout)
	defer cancel()

	records, err := p.extractor.Extract(extractCtx, rawText)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return records, nil
}

func (p *Pipeline) runPersistenceStage(ctx context.Context, doc *models.MedicalDocument, records []extractedLab) error {
	result := validate(doc.OwnerID, records)

	batch := make([]*models.LabResult, 0, len(result.Valid))
	for i := range result.Valid {
		lab := result.Valid[i]
		lab.DocumentID = &doc.ID
		batch = append(batch, &lab)
	}
	// One transaction for the whole document: duplicates are skipped, any
	// other failure rolls back every row so a retry starts clean.
	inserted, skipped, err := p.labs.CreateMany(ctx, batch)
	if err != nil {
		return fmt.Errorf("persist lab results: %w", err)
	}

	parsedData, err := json.Marshal(map[string]any{
		"inserted": inserted,
		"skipped":  skipped,
		"dropped":  result.Dropped,
	})
	if err != nil {
		return fmt.Errorf("marshal parsed_data: %w", err)
	}

	if err := p.documents.UpdateStatus(ctx, doc.ID, models.DocumentCompleted, nil, parsedData); err != nil {
		return fmt.Errorf("transition to completed: %w", err)
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, documentID, stage string, cause error) {
	p.logger.Error("ingest: stage failed", "document_id", documentID, "stage", stage, "error", cause)
	diagnostics, _ := json.Marshal(map[string]string{"error": cause.Error(), "stage": stage})
	if err := p.documents.UpdateStatus(ctx, documentID, models.DocumentFailed, nil, diagnostics); err != nil {
		p.logger.Error("ingest: failed to record failure diagnostics", "document_id", documentID, "error", err)
	}
}
