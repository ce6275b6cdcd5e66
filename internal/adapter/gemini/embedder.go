// Package gemini adapts the Gemini API to the embedding and generation
// ports. Clients are constructed once at process start and passed by
// reference; they are safe for concurrent use.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"docbrain/internal/fault"
)

// Embedder issues one BatchEmbedContents call per EmbedBatch invocation.
// Retrieval quality depends on the task type matching the side of the
// search: documents embed with the document task, queries with the query
// task, so two distinct handles are constructed.
type Embedder struct {
	model *genai.EmbeddingModel
}

func NewDocumentEmbedder(client *genai.Client, model string) *Embedder {
	em := client.EmbeddingModel(model)
	em.TaskType = genai.TaskTypeRetrievalDocument
	return &Embedder{model: em}
}

func NewQueryEmbedder(client *genai.Client, model string) *Embedder {
	em := client.EmbeddingModel(model)
	em.TaskType = genai.TaskTypeRetrievalQuery
	return &Embedder{model: em}
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batch := e.model.NewBatch()
	for _, t := range texts {
		batch = batch.AddContent(genai.Text(t))
	}

	res, err := e.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, classify(err)
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if emb == nil {
			return nil, fault.New(fault.KindIntegrity, "service returned no embedding for text %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// classify maps an upstream error to the fault taxonomy: rate limits and
// 5xx are retryable, deadline hits are timeouts, everything else surfaces
// as-is.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(fault.KindTimeout, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return fault.Wrap(fault.KindTransient, err)
		}
		return fmt.Errorf("gemini request rejected: %w", err)
	}
	// Anything else at this layer is a network-level failure.
	return fault.Wrap(fault.KindTransient, err)
}
