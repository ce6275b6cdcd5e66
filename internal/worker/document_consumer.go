// Package worker consumes crawled documents off NSQ and feeds them through
// the ingestion pipeline.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"docbrain/internal/config"
	"docbrain/internal/ingest"
	"docbrain/internal/middleware"
)

type Ingestor interface {
	Ingest(ctx context.Context, docs []ingest.Document) ingest.Report
}

type ReportPublisher interface {
	Publish(topic string, body []byte) error
}

type DocumentConsumer struct {
	ingestor  Ingestor
	publisher ReportPublisher
}

func NewDocumentConsumer(ingestor Ingestor, publisher ReportPublisher) *DocumentConsumer {
	return &DocumentConsumer{ingestor: ingestor, publisher: publisher}
}

// HandleMessage processes one crawled page. A message with invalid JSON or
// no source url is a poison pill: requeueing it can never succeed, so it is
// dropped. A message whose document fails to ingest is returned as an error
// so NSQ redelivers it.
func (c *DocumentConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var msg DocumentMessage
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if msg.SourceURL == "" {
		slog.Error("poison pill: missing source_url")
		return nil
	}

	ctx := context.Background()
	if msg.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, msg.CorrelationID)
	}

	report := c.ingestor.Ingest(ctx, []ingest.Document{{
		SourceURL: msg.SourceURL,
		RawText:   msg.RawText,
		FetchedAt: msg.FetchedAt,
	}})

	c.publishReport(ctx, msg, report)

	if len(report.Failed) > 0 {
		slog.ErrorContext(ctx, "document ingestion failed, requeueing", "source_url", msg.SourceURL, "error", report.Failed[0].Error)
		return &IngestError{SourceURL: msg.SourceURL, Reason: report.Failed[0].Error}
	}

	slog.InfoContext(ctx, "document consumed", "source_url", msg.SourceURL, "processed", report.Processed, "skipped", report.Skipped)
	return nil
}

func (c *DocumentConsumer) publishReport(ctx context.Context, msg DocumentMessage, report ingest.Report) {
	if c.publisher == nil {
		return
	}
	body, err := json.Marshal(ReportEvent{
		SourceURL:     msg.SourceURL,
		Report:        report,
		CorrelationID: msg.CorrelationID,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal report event", "error", err)
		return
	}
	if err := c.publisher.Publish(config.TopicIngestReport, body); err != nil {
		slog.WarnContext(ctx, "failed to publish report event", "error", err)
	}
}

type IngestError struct {
	SourceURL string
	Reason    string
}

func (e *IngestError) Error() string {
	return "ingesting " + e.SourceURL + ": " + e.Reason
}
