package worker

import (
	"time"

	"docbrain/internal/ingest"
)

// DocumentMessage is what the external crawler publishes on the
// ingest.document topic: one crawled page per message.
type DocumentMessage struct {
	SourceURL     string    `json:"source_url"`
	RawText       string    `json:"raw_text"`
	FetchedAt     time.Time `json:"fetched_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// ReportEvent is published on ingest.report after each consumed document.
type ReportEvent struct {
	SourceURL     string         `json:"source_url"`
	Report        ingest.Report  `json:"report"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}
