package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"docforge"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"docforge"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	ConvertURL string `envconfig:"CONVERT_URL" default:"http://docling:8000"`
	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	DomainConfigPath string `envconfig:"DOMAIN_CONFIG_PATH" default:"config/domains.yaml"`
	StorageRoot      string `envconfig:"STORAGE_ROOT" default:"./data/objects"`
	MigrationPath    string `envconfig:"MIGRATION_PATH" default:"file://migrations"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel   string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`

	IngestionConcurrency int   `envconfig:"INGESTION_CONCURRENCY" default:"8"`
	MaxUploadSizeMB      int64 `envconfig:"MAX_UPLOAD_SIZE_MB" default:"500"`
	ChunkSize            int   `envconfig:"CHUNK_SIZE" default:"1024"`
	ChunkOverlap         int   `envconfig:"CHUNK_OVERLAP" default:"128"`

	// Bounded retry policy. Dispatch retries happen inside the orchestrator;
	// graph attempts are enforced through NSQ redelivery.
	DispatchMaxAttempts int `envconfig:"DISPATCH_MAX_ATTEMPTS" default:"3"`
	GraphMaxAttempts    int `envconfig:"GRAPH_MAX_ATTEMPTS" default:"3"`

	ConvertTimeoutSeconds int `envconfig:"CONVERT_TIMEOUT_SECONDS" default:"120"`
	StorageTimeoutSeconds int `envconfig:"STORAGE_TIMEOUT_SECONDS" default:"30"`
	IndexTimeoutSeconds   int `envconfig:"INDEX_TIMEOUT_SECONDS" default:"30"`

	ServerPort int `envconfig:"SERVER_PORT" default:"8081"`

	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may come from the shell; a missing .env is not an error.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.DomainConfigPath == "" {
		return fmt.Errorf("%w: DOMAIN_CONFIG_PATH", ErrMissingRequired)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be smaller than CHUNK_SIZE", ErrMissingRequired)
	}
	return nil
}

func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadSizeMB << 20
}
