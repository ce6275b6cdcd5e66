// Package query exposes the online question-answering endpoint.
package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"docbrain/internal/answer"
	"docbrain/internal/middleware"
	"docbrain/internal/vector"
)

type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int, contextText string) ([]vector.Hit, error)
}

type Composer interface {
	Compose(ctx context.Context, question string, hits []vector.Hit, maxTokens int) answer.Answer
}

type ChunkCounter interface {
	Count(ctx context.Context) (int, error)
}

type DocumentCounter interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	retriever       Retriever
	composer        Composer
	chunks          ChunkCounter
	documents       DocumentCounter
	maxAnswerTokens int

	requests atomic.Int64
}

func NewHandler(retriever Retriever, composer Composer, chunks ChunkCounter, documents DocumentCounter, maxAnswerTokens int) *Handler {
	return &Handler{
		retriever:       retriever,
		composer:        composer,
		chunks:          chunks,
		documents:       documents,
		maxAnswerTokens: maxAnswerTokens,
	}
}

type queryResponse struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
	LatencyMs int64    `json:"latency_ms"`
}

// Query answers a question from the indexed corpus. "No relevant content"
// is a 200 with empty citations; an upstream dependency failure is a 502.
// The two are never conflated: the former is a valid answer, the latter
// needs caller-side retry or alerting.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	h.requests.Add(1)
	start := time.Now()

	var req struct {
		Question  string `json:"question"`
		TopK      int    `json:"top_k"`
		Context   string `json:"context"`
		MaxTokens int    `json:"max_tokens"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest, nil)
		return
	}
	if req.Question == "" {
		h.writeError(r, w, "VALIDATION_ERROR", "question is required", http.StatusBadRequest, nil)
		return
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = h.maxAnswerTokens
	}

	hits, err := h.retriever.Retrieve(r.Context(), req.Question, req.TopK, req.Context)
	if err != nil {
		slog.ErrorContext(r.Context(), "retrieval failed", "error", err)
		h.writeError(r, w, "UPSTREAM_ERROR", "retrieval dependency failed", http.StatusBadGateway, nil)
		return
	}

	ans := h.composer.Compose(r.Context(), req.Question, hits, maxTokens)
	if ans.Status == answer.StatusFailed {
		// Retrieval succeeded; hand the citations back with the failure so
		// that work is not discarded.
		h.writeError(r, w, "GENERATION_FAILED", ans.Text, http.StatusBadGateway, ans.Citations)
		return
	}

	citations := ans.Citations
	if citations == nil {
		citations = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(queryResponse{
		Answer:    ans.Text,
		Citations: citations,
		LatencyMs: time.Since(start).Milliseconds(),
	}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type statsResponse struct {
	Requests  int64 `json:"requests"`
	Documents int   `json:"documents"`
	Chunks    int   `json:"chunks"`
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docCount, err := h.documents.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err)
		h.writeError(r, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError, nil)
		return
	}

	chunkCount, err := h.chunks.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count chunks", "error", err)
		h.writeError(r, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": statsResponse{
		Requests:  h.requests.Load(),
		Documents: docCount,
		Chunks:    chunkCount,
	}}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(r *http.Request, w http.ResponseWriter, code, message string, status int, citations []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errBody := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	resp := map[string]interface{}{
		"error":         errBody,
		"correlationId": middleware.GetCorrelationID(r.Context()),
	}
	if citations != nil {
		resp["citations"] = citations
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
