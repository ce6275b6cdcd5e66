// Package retrieval is the online read path: embed a question, run
// similarity search, and filter the hits into a usable result set.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docbrain/internal/vector"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, vec []float32, topK int, filter map[string]interface{}) ([]vector.Hit, error)
}

type Service struct {
	embedder    Embedder
	store       Searcher
	minScore    float32
	defaultTopK int
	maxTopK     int
	logger      *QueryLogger
}

func NewService(embedder Embedder, store Searcher, minScore float32, defaultTopK, maxTopK int, logger *QueryLogger) *Service {
	if defaultTopK < 1 {
		defaultTopK = 5
	}
	if maxTopK < 1 {
		maxTopK = 20
	}
	return &Service{
		embedder:    embedder,
		store:       store,
		minScore:    minScore,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
		logger:      logger,
	}
}

// queryTemplate biases the query embedding toward a user-supplied passage
// without a second retrieval pass.
const queryTemplate = "Context: %s\n\nQuestion: %s"

// Retrieve embeds the question, searches, and drops hits below the score
// threshold. An empty result is a valid outcome ("no relevant content
// found"), distinct from an error: only service failures return non-nil err.
// topK is clamped to [1, maxTopK] rather than rejected; topK <= 0 selects
// the default.
func (s *Service) Retrieve(ctx context.Context, question string, topK int, contextText string) ([]vector.Hit, error) {
	start := time.Now()

	if topK <= 0 {
		topK = s.defaultTopK
	}
	if topK < 1 {
		topK = 1
	}
	if topK > s.maxTopK {
		topK = s.maxTopK
	}

	query := question
	if contextText != "" {
		query = fmt.Sprintf(queryTemplate, contextText, question)
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.store.Search(ctx, vectors[0], topK, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	filtered := hits[:0]
	for _, h := range hits {
		if h.Score >= s.minScore {
			filtered = append(filtered, h)
		}
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:      question,
			TopK:       topK,
			NumResults: len(filtered),
			Duration:   time.Since(start),
		})
	}

	slog.InfoContext(ctx, "retrieval completed", "top_k", topK, "hits", len(hits), "above_threshold", len(filtered))
	return filtered, nil
}
