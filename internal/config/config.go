package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"docbrain"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"docbrain"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`

	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	EmbedModel     string `envconfig:"EMBED_MODEL" default:"gemini-embedding-001"`
	GenerateModel  string `envconfig:"GENERATE_MODEL" default:"gemini-2.0-flash"`
	EmbedBatchSize int    `envconfig:"EMBED_BATCH_SIZE" default:"96"`
	EmbedRetries   int    `envconfig:"EMBED_RETRIES" default:"3"`

	Collection      string `envconfig:"COLLECTION" default:"DocChunk"`
	VectorDimension int    `envconfig:"VECTOR_DIMENSION" default:"768"`
	UpsertBatchSize int    `envconfig:"UPSERT_BATCH_SIZE" default:"100"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"500"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"50"`

	IngestWorkers   int     `envconfig:"INGEST_WORKERS" default:"4"`
	DefaultTopK     int     `envconfig:"DEFAULT_TOP_K" default:"5"`
	MaxTopK         int     `envconfig:"MAX_TOP_K" default:"20"`
	MinScore        float32 `envconfig:"MIN_SCORE" default:"0.3"`
	MaxContextChars int     `envconfig:"MAX_CONTEXT_CHARS" default:"3000"`
	MaxAnswerTokens int     `envconfig:"MAX_ANSWER_TOKENS" default:"500"`

	EmbedTimeout    time.Duration `envconfig:"EMBED_TIMEOUT" default:"60s"`
	GenerateTimeout time.Duration `envconfig:"GENERATE_TIMEOUT" default:"60s"`
	StoreTimeout    time.Duration `envconfig:"STORE_TIMEOUT" default:"30s"`

	ServerPort    int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath  string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	EnableAPI            bool `envconfig:"ENABLE_API" default:"true"`
	EnableIngestConsumer bool `envconfig:"ENABLE_INGEST_CONSUMER" default:"true"`

	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may come from the shell; a missing .env is not an error.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fails fast on parameters that would corrupt the pipeline,
// before any network client is constructed.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalid)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalid)
	}
	if c.VectorDimension <= 0 {
		return fmt.Errorf("%w: VECTOR_DIMENSION must be positive", ErrInvalid)
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("%w: EMBED_BATCH_SIZE must be positive", ErrInvalid)
	}
	if c.IngestWorkers <= 0 {
		return fmt.Errorf("%w: INGEST_WORKERS must be positive", ErrInvalid)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: COLLECTION is required", ErrInvalid)
	}
	return nil
}
