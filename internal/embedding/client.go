// Package embedding orchestrates batched embedding calls against an
// upstream service, preserving input order and surfacing failures with
// enough detail to attribute them to a text index.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docbrain/internal/fault"
	"docbrain/internal/retry"
)

// BatchEmbedder is one network call: an ordered sequence of texts in, an
// equal-length ordered sequence of vectors out.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ServiceError reports which slice of the input could not be embedded after
// retries were exhausted. Callers decide whether to skip the unit that owns
// those texts or abort entirely. The client never substitutes placeholder
// vectors: a fabricated embedding would silently corrupt similarity search.
type ServiceError struct {
	Start int // index of the first text in the failing batch
	End   int // index one past the last text in the failing batch
	Err   error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedding texts [%d:%d] failed: %v", e.Start, e.End, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

type Client struct {
	backend   BatchEmbedder
	batchSize int
	timeout   time.Duration
	policy    retry.Policy
}

func NewClient(backend BatchEmbedder, batchSize, maxAttempts int, timeout time.Duration) *Client {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Client{
		backend:   backend,
		batchSize: batchSize,
		timeout:   timeout,
		policy:    retry.New(maxAttempts, fault.IsRetryable),
	}
}

// Embed returns one vector per input text, output[i] embedding texts[i].
// The input is partitioned into batches of at most the configured size, one
// upstream call per batch, each retried with bounded backoff on transient
// failures. A batch that exhausts its retries fails the whole call with a
// *ServiceError carrying that batch's index range.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	dim := 0

	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		var result [][]float32
		err := c.policy.Do(ctx, func(ctx context.Context) error {
			callCtx := ctx
			if c.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, c.timeout)
				defer cancel()
			}
			var callErr error
			result, callErr = c.backend.EmbedBatch(callCtx, batch)
			return callErr
		})
		if err != nil {
			return nil, &ServiceError{Start: start, End: end, Err: err}
		}

		if len(result) != len(batch) {
			return nil, &ServiceError{
				Start: start,
				End:   end,
				Err:   fault.New(fault.KindIntegrity, "service returned %d vectors for %d texts", len(result), len(batch)),
			}
		}
		for i, v := range result {
			if dim == 0 {
				dim = len(v)
			}
			if len(v) == 0 || len(v) != dim {
				return nil, &ServiceError{
					Start: start,
					End:   end,
					Err:   fault.New(fault.KindIntegrity, "vector %d has dimension %d, want %d", start+i, len(v), dim),
				}
			}
		}

		vectors = append(vectors, result...)
		slog.DebugContext(ctx, "embedded batch", "from", start, "to", end, "total", len(texts))
	}

	return vectors, nil
}
