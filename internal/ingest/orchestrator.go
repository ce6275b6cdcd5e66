// Package ingest drives the batch pipeline: chunk, embed, persist, over a
// set of crawled pages, with per-document failure isolation.
package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docbrain/internal/fault"
	"docbrain/internal/text"
	"docbrain/internal/vector"
)

// Document is a source unit handed over by the crawler. It is consumed
// once by the chunker and not persisted beyond ingestion.
type Document struct {
	SourceURL string    `json:"source_url"`
	RawText   string    `json:"raw_text"`
	FetchedAt time.Time `json:"fetched_at"`
}

type Failure struct {
	SourceURL string `json:"source_url"`
	Error     string `json:"error"`
}

type Report struct {
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	Failed    []Failure `json:"failed,omitempty"`
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type ChunkStore interface {
	Upsert(ctx context.Context, records []vector.Record) error
	DeleteBySource(ctx context.Context, sourceURL string) error
}

// Registry tracks what has been ingested per source url, enabling
// unchanged-content skips across runs.
type Registry interface {
	ContentHash(ctx context.Context, sourceURL string) (string, error)
	RecordIngested(ctx context.Context, sourceURL, contentHash string, chunkCount int) error
	RecordFailed(ctx context.Context, sourceURL, reason string) error
}

// Orchestrator owns chunk lifecycle and write access to the store; the
// query path only ever reads.
type Orchestrator struct {
	chunker  *text.Chunker
	embedder Embedder
	store    ChunkStore
	registry Registry
	workers  int
}

func NewOrchestrator(chunker *text.Chunker, embedder Embedder, store ChunkStore, registry Registry, workers int) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{chunker: chunker, embedder: embedder, store: store, registry: registry, workers: workers}
}

// Ingest processes documents with bounded parallelism. A document that
// fails to embed or store is recorded in the report and does not abort the
// others. Document-to-document ordering is not guaranteed.
//
// Per document the store sees delete-then-upsert, composed so that the only
// unsafe window is a crash between the two calls: until the next successful
// re-ingestion that document's chunks are missing. This is a known,
// accepted limitation; the operations are not transactional.
func (o *Orchestrator) Ingest(ctx context.Context, docs []Document) Report {
	var (
		mu     sync.Mutex
		report Report
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, doc := range docs {
		g.Go(func() error {
			skipped, err := o.ingestOne(ctx, doc)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed = append(report.Failed, Failure{SourceURL: doc.SourceURL, Error: err.Error()})
			case skipped:
				report.Skipped++
			default:
				report.Processed++
			}
			return nil
		})
	}

	_ = g.Wait()
	return report
}

func (o *Orchestrator) ingestOne(ctx context.Context, doc Document) (skipped bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	cleaned := text.CleanText(doc.RawText)
	hash := contentHash(cleaned)

	if o.registry != nil {
		prev, err := o.registry.ContentHash(ctx, doc.SourceURL)
		if err != nil {
			// Registry trouble must not block ingestion; worst case we
			// redo idempotent work.
			slog.WarnContext(ctx, "registry lookup failed", "source_url", doc.SourceURL, "error", err)
		} else if prev != "" && prev == hash {
			slog.InfoContext(ctx, "content unchanged, skipping", "source_url", doc.SourceURL)
			return true, nil
		}
	}

	if err := o.reingest(ctx, doc.SourceURL, cleaned); err != nil {
		slog.ErrorContext(ctx, "document ingestion failed", "source_url", doc.SourceURL, "error", err)
		if o.registry != nil {
			if rerr := o.registry.RecordFailed(ctx, doc.SourceURL, err.Error()); rerr != nil {
				slog.WarnContext(ctx, "failed to record ingestion failure", "source_url", doc.SourceURL, "error", rerr)
			}
		}
		return false, err
	}

	return false, nil
}

func (o *Orchestrator) reingest(ctx context.Context, sourceURL, cleaned string) error {
	chunks := o.chunker.Chunk(sourceURL, cleaned)

	records := make([]vector.Record, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.StartPos < 0 || c.StartPos >= c.EndPos || c.EndPos > len(cleaned) {
			return fault.New(fault.KindIntegrity, "chunk %s offsets [%d:%d] out of bounds for text of length %d", c.ID, c.StartPos, c.EndPos, len(cleaned))
		}
		texts = append(texts, c.Text)
		records = append(records, vector.Record{
			ChunkID:       c.ID,
			Text:          c.Text,
			SourceURL:     c.SourceURL,
			StartPos:      c.StartPos,
			EndPos:        c.EndPos,
			SequenceIndex: c.SequenceIndex,
		})
	}

	// Embed before touching the store so an embedding failure leaves the
	// previous chunks intact.
	vectors, err := o.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(texts), err)
	}
	for i := range records {
		records[i].Vector = vectors[i]
	}

	// Stale windows must go first: a shrunken document would otherwise
	// leave orphaned chunks beyond its new extent.
	if err := o.store.DeleteBySource(ctx, sourceURL); err != nil {
		return fmt.Errorf("deleting existing chunks: %w", err)
	}
	if len(records) > 0 {
		if err := o.store.Upsert(ctx, records); err != nil {
			return fmt.Errorf("storing %d chunks: %w", len(records), err)
		}
	}

	if o.registry != nil {
		if err := o.registry.RecordIngested(ctx, sourceURL, contentHash(cleaned), len(records)); err != nil {
			slog.WarnContext(ctx, "failed to record ingestion", "source_url", sourceURL, "error", err)
		}
	}

	slog.InfoContext(ctx, "document ingested", "source_url", sourceURL, "chunks", len(records))
	return nil
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}
