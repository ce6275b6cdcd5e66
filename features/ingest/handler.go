package ingest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	coreingest "docbrain/internal/ingest"
	"docbrain/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Ingest is the direct path for the crawler collaborator: a batch of
// (source_url, raw_text) pairs in, an ingestion report out. Per-document
// failures are part of the report, not an HTTP error.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Documents []struct {
			SourceURL string    `json:"source_url"`
			RawText   string    `json:"raw_text"`
			FetchedAt time.Time `json:"fetched_at"`
		} `json:"documents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Documents) == 0 {
		h.writeError(r, w, "VALIDATION_ERROR", "documents is required", http.StatusBadRequest)
		return
	}

	docs := make([]coreingest.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		if d.SourceURL == "" {
			h.writeError(r, w, "VALIDATION_ERROR", "source_url is required for every document", http.StatusBadRequest)
			return
		}
		docs = append(docs, coreingest.Document{SourceURL: d.SourceURL, RawText: d.RawText, FetchedAt: d.FetchedAt})
	}

	report := h.service.Ingest(r.Context(), docs)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": report}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListDocuments(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list documents", "error", err)
		h.writeError(r, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": records}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(r *http.Request, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(r.Context()),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
