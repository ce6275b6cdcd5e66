// Package vector owns the collection schema and query semantics of the
// vector store, behind a narrow client interface so the backing store can
// be substituted in tests.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"docbrain/internal/fault"
)

// Record is the persisted unit. The payload duplicates the chunk fields so
// retrieval needs no second lookup.
type Record struct {
	ChunkID       string
	Vector        []float32
	Text          string
	SourceURL     string
	StartPos      int
	EndPos        int
	SequenceIndex int
}

// Hit is one similarity search result. Score is the raw similarity metric
// returned by the store, not renormalized.
type Hit struct {
	ChunkID       string
	Text          string
	SourceURL     string
	StartPos      int
	EndPos        int
	SequenceIndex int
	Score         float32
}

// ErrSchemaMismatch reports that an existing collection holds vectors of a
// different dimensionality than the one being ensured.
var ErrSchemaMismatch = errors.New("collection dimensionality mismatch")

// PartialWriteError reports exactly which chunk ids failed in a batched
// upsert, so the orchestrator can retry only those.
type PartialWriteError struct {
	FailedIDs []string
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("upsert failed for %d records: %s", len(e.FailedIDs), strings.Join(e.FailedIDs, ", "))
}

// StoreClient is the operation set the adapter needs from a concrete store.
type StoreClient interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string) error
	// SampleDimension returns the dimensionality of one stored vector, or 0
	// when the collection is empty.
	SampleDimension(ctx context.Context, name string) (int, error)
	// UpsertBatch overwrites records by chunk id and returns the ids that
	// could not be written.
	UpsertBatch(ctx context.Context, name string, records []Record) ([]string, error)
	DeleteBySource(ctx context.Context, name, sourceURL string) error
	// Query runs similarity search; a non-empty filter restricts candidates
	// to records whose payload fields equal the given values.
	Query(ctx context.Context, name string, vector []float32, limit int, filter map[string]interface{}) ([]Hit, error)
	Count(ctx context.Context, name string) (int, error)
}

type Adapter struct {
	client     StoreClient
	collection string
	dim        int
	batchSize  int
	timeout    time.Duration
}

func NewAdapter(client StoreClient, collection string, dim, batchSize int, timeout time.Duration) *Adapter {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Adapter{client: client, collection: collection, dim: dim, batchSize: batchSize, timeout: timeout}
}

func (a *Adapter) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(ctx, a.timeout)
	}
	return ctx, func() {}
}

// EnsureCollection creates the collection if absent. When it already exists
// and holds data, the dimensionality of a sampled vector is checked against
// the configured one; a differing store fails with ErrSchemaMismatch rather
// than silently mixing dimensionalities. An existing empty collection is
// accepted as-is, since the store does not record a dimension until the
// first write.
func (a *Adapter) EnsureCollection(ctx context.Context) error {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	exists, err := a.client.CollectionExists(ctx, a.collection)
	if err != nil {
		return fmt.Errorf("checking collection %q: %w", a.collection, err)
	}
	if !exists {
		return a.client.CreateCollection(ctx, a.collection)
	}

	dim, err := a.client.SampleDimension(ctx, a.collection)
	if err != nil {
		return fmt.Errorf("sampling collection %q: %w", a.collection, err)
	}
	if dim != 0 && dim != a.dim {
		return fmt.Errorf("%w: collection %q holds %d-dimensional vectors, configured for %d", ErrSchemaMismatch, a.collection, dim, a.dim)
	}
	return nil
}

// Upsert overwrites records by chunk id, batching writes to respect the
// store's request-size limits. Vector dimensionality is validated before
// anything is written. Failed ids across all batches are collected into a
// single *PartialWriteError.
func (a *Adapter) Upsert(ctx context.Context, records []Record) error {
	for _, r := range records {
		if len(r.Vector) != a.dim {
			return fault.New(fault.KindIntegrity, "record %s has dimension %d, collection %q wants %d", r.ChunkID, len(r.Vector), a.collection, a.dim)
		}
	}

	var failed []string
	for start := 0; start < len(records); start += a.batchSize {
		end := start + a.batchSize
		if end > len(records) {
			end = len(records)
		}

		ctx2, cancel := a.callCtx(ctx)
		ids, err := a.client.UpsertBatch(ctx2, a.collection, records[start:end])
		cancel()
		if err != nil {
			return fmt.Errorf("upserting batch [%d:%d]: %w", start, end, err)
		}
		failed = append(failed, ids...)
	}

	if len(failed) > 0 {
		return &PartialWriteError{FailedIDs: failed}
	}
	return nil
}

// DeleteBySource removes every chunk stored for a source url. Ingestion
// calls this before upserting a document's new chunks so a shrunken
// document leaves no orphaned stale windows.
func (a *Adapter) DeleteBySource(ctx context.Context, sourceURL string) error {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()
	return a.client.DeleteBySource(ctx, a.collection, sourceURL)
}

// Search returns at most topK hits ordered by descending similarity, ties
// broken by ascending chunk id so result order is deterministic. A non-nil
// filter restricts candidates by payload equality (e.g. sourceUrl).
//
// A record upserted while a search is in flight may or may not appear in
// that search's results; the store is eventually consistent and no stronger
// guarantee is made.
func (a *Adapter) Search(ctx context.Context, vec []float32, topK int, filter map[string]interface{}) ([]Hit, error) {
	if len(vec) != a.dim {
		return nil, fault.New(fault.KindIntegrity, "query vector has dimension %d, collection %q wants %d", len(vec), a.collection, a.dim)
	}
	if topK < 1 {
		topK = 1
	}

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	hits, err := a.client.Query(ctx, a.collection, vec, topK, filter)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Count reports the number of stored chunks in the collection.
func (a *Adapter) Count(ctx context.Context) (int, error) {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()
	return a.client.Count(ctx, a.collection)
}
