// Package config holds the numeric thresholds and service settings supplied
// at job-construction time. A Config is immutable for the lifetime of the
// jobs built from it.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LLM     LLMConfig
	Budget  BudgetConfig
	Quality QualityConfig
	Memory  MemoryConfig
	Store   StoreConfig
}

type LLMConfig struct {
	APIKey         string        `envconfig:"OPENAI_API_KEY"`
	Model          string        `envconfig:"LOOM_MODEL" default:"gpt-4o"`
	ReflectModel   string        `envconfig:"LOOM_REFLECT_MODEL" default:"gpt-4o-mini"`
	MaxTokens      int           `envconfig:"LOOM_MAX_TOKENS" default:"4096"`
	RequestTimeout time.Duration `envconfig:"LOOM_REQUEST_TIMEOUT" default:"120s"`
	BatchSize      int           `envconfig:"LOOM_BATCH_SIZE" default:"10"`
	BatchDelay     time.Duration `envconfig:"LOOM_BATCH_DELAY" default:"1s"`
	MinInterval    time.Duration `envconfig:"LOOM_MIN_INTERVAL" default:"500ms"`
	MaxTransport   int           `envconfig:"LOOM_MAX_TRANSPORT_RETRIES" default:"3"`
}

type BudgetConfig struct {
	ContextCeiling int `envconfig:"LOOM_CONTEXT_BUDGET" default:"73000"`
	Instructions   int `envconfig:"LOOM_BUDGET_INSTRUCTIONS" default:"8000"`
	Articles       int `envconfig:"LOOM_BUDGET_ARTICLES" default:"50000"`
	Memory         int `envconfig:"LOOM_BUDGET_MEMORY" default:"10000"`
	Reference      int `envconfig:"LOOM_BUDGET_REFERENCE" default:"5000"`
}

type QualityConfig struct {
	DepthThreshold    float64       `envconfig:"LOOM_DEPTH_THRESHOLD" default:"8.0"`
	DimensionFloor    float64       `envconfig:"LOOM_DIMENSION_FLOOR" default:"6.0"`
	MaxContradicted   float64       `envconfig:"LOOM_MAX_CONTRADICTED_RATIO" default:"0.05"`
	MaxLoadedLanguage int           `envconfig:"LOOM_MAX_LOADED_LANGUAGE" default:"3"`
	MaxRetries        int           `envconfig:"LOOM_MAX_RETRIES" default:"3"`
	JobTimeout        time.Duration `envconfig:"LOOM_JOB_TIMEOUT" default:"15m"`
	Concurrency       int           `envconfig:"LOOM_CONCURRENCY" default:"4"`
}

type MemoryConfig struct {
	MilvusAddress  string `envconfig:"MILVUS_ADDRESS" default:"localhost:19530"`
	Collection     string `envconfig:"MILVUS_COLLECTION" default:"loom_briefs"`
	EmbeddingModel string `envconfig:"LOOM_EMBEDDING_MODEL" default:"text-embedding-3-large"`
	Dimension      int    `envconfig:"LOOM_EMBEDDING_DIM" default:"3072"`
}

type StoreConfig struct {
	Path string `envconfig:"LOOM_DB_PATH" default:"loom.db"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
