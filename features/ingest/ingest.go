package ingest

import (
	"context"
	"time"

	coreingest "docbrain/internal/ingest"
)

// DocumentRecord is one row of the ingestion registry: what we last saw
// for a source url and how it went.
type DocumentRecord struct {
	ID             string    `json:"id"`
	SourceURL      string    `json:"source_url"`
	ContentHash    string    `json:"-"`
	ChunkCount     int       `json:"chunk_count"`
	Status         string    `json:"status"` // ingested, failed
	Error          string    `json:"error,omitempty"`
	LastIngestedAt time.Time `json:"last_ingested_at"`
}

type Repository interface {
	ContentHash(ctx context.Context, sourceURL string) (string, error)
	RecordIngested(ctx context.Context, sourceURL, contentHash string, chunkCount int) error
	RecordFailed(ctx context.Context, sourceURL, reason string) error
	List(ctx context.Context) ([]DocumentRecord, error)
	Count(ctx context.Context) (int, error)
}

type Orchestrator interface {
	Ingest(ctx context.Context, docs []coreingest.Document) coreingest.Report
}

// Service fronts the orchestrator for the HTTP surface.
type Service struct {
	orch Orchestrator
	repo Repository
}

func NewService(orch Orchestrator, repo Repository) *Service {
	return &Service{orch: orch, repo: repo}
}

func (s *Service) Ingest(ctx context.Context, docs []coreingest.Document) coreingest.Report {
	return s.orch.Ingest(ctx, docs)
}

func (s *Service) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	return s.repo.List(ctx)
}
