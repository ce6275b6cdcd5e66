package config

const (
	// TopicIngestDocument carries (source_url, raw_text) pairs produced by
	// the external crawler.
	TopicIngestDocument = "ingest.document"

	// TopicIngestReport carries ingestion reports published after each
	// consumed document batch.
	TopicIngestReport = "ingest.report"

	// ChannelIngest is the consumer channel name for the ingestion worker.
	ChannelIngest = "docbrain-ingest"
)
