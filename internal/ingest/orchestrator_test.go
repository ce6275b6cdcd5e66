package ingest_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbrain/internal/ingest"
	"docbrain/internal/text"
	"docbrain/internal/vector"
)

// fakeEmbedder embeds every text as a fixed-dimension vector, failing for
// texts containing a poison marker.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "POISON") {
			return nil, errors.New("embedding service rejected input")
		}
		out[i] = []float32{float32(len(t)), 1, 2}
	}
	return out, nil
}

// memoryStore mimics the delete/upsert surface with an in-memory map keyed
// by chunk id.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]vector.Record
	fail    bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]vector.Record)}
}

func (s *memoryStore) Upsert(ctx context.Context, records []vector.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	for _, r := range records {
		s.records[r.ChunkID] = r
	}
	return nil
}

func (s *memoryStore) DeleteBySource(ctx context.Context, sourceURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	for id, r := range s.records {
		if r.SourceURL == sourceURL {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *memoryStore) countBySource(sourceURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.SourceURL == sourceURL {
			n++
		}
	}
	return n
}

// memoryRegistry tracks per-source content hashes.
type memoryRegistry struct {
	mu       sync.Mutex
	hashes   map[string]string
	failures map[string]string
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{hashes: make(map[string]string), failures: make(map[string]string)}
}

func (r *memoryRegistry) ContentHash(ctx context.Context, sourceURL string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hashes[sourceURL], nil
}

func (r *memoryRegistry) RecordIngested(ctx context.Context, sourceURL, contentHash string, chunkCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashes[sourceURL] = contentHash
	return nil
}

func (r *memoryRegistry) RecordFailed(ctx context.Context, sourceURL, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[sourceURL] = reason
	return nil
}

func newOrchestrator(t *testing.T, embedder ingest.Embedder, store ingest.ChunkStore, registry ingest.Registry) *ingest.Orchestrator {
	t.Helper()
	chunker, err := text.NewChunker(100, 20)
	require.NoError(t, err)
	return ingest.NewOrchestrator(chunker, embedder, store, registry, 2)
}

func TestIngest_ProcessesDocuments(t *testing.T) {
	store := newMemoryStore()
	orch := newOrchestrator(t, &fakeEmbedder{}, store, newMemoryRegistry())

	report := orch.Ingest(context.Background(), []ingest.Document{
		{SourceURL: "/a", RawText: strings.Repeat("alpha content here. ", 20)},
		{SourceURL: "/b", RawText: strings.Repeat("beta content here. ", 20)},
	})

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 0, report.Skipped)
	assert.Empty(t, report.Failed)
	assert.Greater(t, store.countBySource("/a"), 1)
	assert.Greater(t, store.countBySource("/b"), 1)
}

func TestIngest_Idempotent(t *testing.T) {
	store := newMemoryStore()
	orch := newOrchestrator(t, &fakeEmbedder{}, store, nil)

	doc := ingest.Document{SourceURL: "/a", RawText: strings.Repeat("same content here. ", 20)}

	orch.Ingest(context.Background(), []ingest.Document{doc})
	first := store.countBySource("/a")
	orch.Ingest(context.Background(), []ingest.Document{doc})

	assert.Equal(t, first, store.countBySource("/a"), "re-ingestion must not duplicate chunks")
}

func TestIngest_ShrunkenDocumentLeavesNoOrphans(t *testing.T) {
	store := newMemoryStore()
	orch := newOrchestrator(t, &fakeEmbedder{}, store, nil)

	long := ingest.Document{SourceURL: "/a", RawText: strings.Repeat("x", 300)}
	orch.Ingest(context.Background(), []ingest.Document{long})
	require.Greater(t, store.countBySource("/a"), 1)

	short := ingest.Document{SourceURL: "/a", RawText: strings.Repeat("y", 50)}
	report := orch.Ingest(context.Background(), []ingest.Document{short})

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, store.countBySource("/a"), "stale windows beyond the new extent must be gone")
}

func TestIngest_FailureIsolatedPerDocument(t *testing.T) {
	store := newMemoryStore()
	registry := newMemoryRegistry()
	orch := newOrchestrator(t, &fakeEmbedder{}, store, registry)

	report := orch.Ingest(context.Background(), []ingest.Document{
		{SourceURL: "/good", RawText: strings.Repeat("fine content here. ", 20)},
		{SourceURL: "/bad", RawText: "POISON " + strings.Repeat("z", 200)},
	})

	assert.Equal(t, 1, report.Processed)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "/bad", report.Failed[0].SourceURL)
	assert.NotEmpty(t, report.Failed[0].Error)

	assert.Greater(t, store.countBySource("/good"), 0)
	assert.Contains(t, registry.failures, "/bad")
}

func TestIngest_EmbeddingFailureLeavesPreviousChunksIntact(t *testing.T) {
	store := newMemoryStore()
	orch := newOrchestrator(t, &fakeEmbedder{}, store, nil)

	orch.Ingest(context.Background(), []ingest.Document{
		{SourceURL: "/a", RawText: strings.Repeat("good content. ", 20)},
	})
	before := store.countBySource("/a")
	require.Greater(t, before, 0)

	report := orch.Ingest(context.Background(), []ingest.Document{
		{SourceURL: "/a", RawText: "POISON replacement"},
	})

	require.Len(t, report.Failed, 1)
	assert.Equal(t, before, store.countBySource("/a"), "a failed re-ingestion must not delete existing chunks")
}

func TestIngest_SkipsUnchangedContent(t *testing.T) {
	store := newMemoryStore()
	registry := newMemoryRegistry()
	embedder := &fakeEmbedder{}
	orch := newOrchestrator(t, embedder, store, registry)

	doc := ingest.Document{SourceURL: "/a", RawText: strings.Repeat("stable content. ", 20)}

	first := orch.Ingest(context.Background(), []ingest.Document{doc})
	assert.Equal(t, 1, first.Processed)

	second := orch.Ingest(context.Background(), []ingest.Document{doc})
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, embedder.calls, "unchanged content must not be re-embedded")
}

func TestIngest_ChangedContentReembedded(t *testing.T) {
	store := newMemoryStore()
	registry := newMemoryRegistry()
	embedder := &fakeEmbedder{}
	orch := newOrchestrator(t, embedder, store, registry)

	orch.Ingest(context.Background(), []ingest.Document{{SourceURL: "/a", RawText: "first version"}})
	report := orch.Ingest(context.Background(), []ingest.Document{{SourceURL: "/a", RawText: "second version"}})

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 2, embedder.calls)
}

func TestIngest_EmptyDocumentClearsStore(t *testing.T) {
	store := newMemoryStore()
	orch := newOrchestrator(t, &fakeEmbedder{}, store, nil)

	orch.Ingest(context.Background(), []ingest.Document{{SourceURL: "/a", RawText: strings.Repeat("x", 200)}})
	require.Greater(t, store.countBySource("/a"), 0)

	report := orch.Ingest(context.Background(), []ingest.Document{{SourceURL: "/a", RawText: "   "}})
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 0, store.countBySource("/a"))
}

func TestIngest_NoDocuments(t *testing.T) {
	orch := newOrchestrator(t, &fakeEmbedder{}, newMemoryStore(), nil)
	report := orch.Ingest(context.Background(), nil)
	assert.Equal(t, 0, report.Processed)
	assert.Empty(t, report.Failed)
}
