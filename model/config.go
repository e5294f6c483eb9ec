package model

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EmbeddingBackend selects the embedding implementation
type EmbeddingBackend string

const (
	// EmbeddingBackendOpenAI uses the OpenAI embeddings API
	EmbeddingBackendOpenAI EmbeddingBackend = "openai"
	// EmbeddingBackendLocal uses a local sentence transformer model via hugot
	EmbeddingBackendLocal EmbeddingBackend = "local"
)

// Config holds the full pipeline configuration. It is constructed once at
// process start and passed into each component's constructor.
//
// Chunk size rationale: 2000 characters (~512 tokens) balances context
// granularity with retrieval precision. Policy documents contain discrete
// clauses that typically fit within this size. The overlap preserves context
// at chunk boundaries.
type Config struct {
	// Chunking
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`

	// Retrieval
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`

	// Models
	EmbeddingBackend     EmbeddingBackend `json:"embedding_backend"`
	EmbeddingModel       string           `json:"embedding_model"`
	EmbeddingDimension   int              `json:"embedding_dimension"`
	LLMModel             string           `json:"llm_model"`
	Temperature          float32          `json:"temperature"`
	EmbeddingConcurrency int              `json:"embedding_concurrency"`
	MaxRetries           int              `json:"max_retries"`
	RequestTimeout       time.Duration    `json:"request_timeout"`

	// Index
	IndexName string `json:"index_name"`

	// Paths
	DocsDir    string `json:"docs_dir"`
	ResultsDir string `json:"results_dir"`
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:            2000,
		ChunkOverlap:         200,
		TopK:                 3,
		SimilarityThreshold:  0.3,
		EmbeddingBackend:     EmbeddingBackendOpenAI,
		EmbeddingModel:       "text-embedding-3-small",
		EmbeddingDimension:   1536,
		LLMModel:             "gpt-4o-mini",
		Temperature:          0.1,
		EmbeddingConcurrency: 8,
		MaxRetries:           3,
		RequestTimeout:       30 * time.Second,
		IndexName:            "rag-policy-docs",
		DocsDir:              "data/policies",
		ResultsDir:           "results",
	}
}

// NewConfigFromEnv builds a configuration from the defaults with POLICYRAG_*
// environment overrides applied, and validates it.
func NewConfigFromEnv() (*Config, error) {
	config := DefaultConfig()

	config.ChunkSize = envInt("POLICYRAG_CHUNK_SIZE", config.ChunkSize)
	config.ChunkOverlap = envInt("POLICYRAG_CHUNK_OVERLAP", config.ChunkOverlap)
	config.TopK = envInt("POLICYRAG_TOP_K", config.TopK)
	config.SimilarityThreshold = envFloat("POLICYRAG_SIMILARITY_THRESHOLD", config.SimilarityThreshold)
	config.EmbeddingBackend = EmbeddingBackend(envString("POLICYRAG_EMBEDDING_BACKEND", string(config.EmbeddingBackend)))
	config.EmbeddingModel = envString("POLICYRAG_EMBEDDING_MODEL", config.EmbeddingModel)
	config.EmbeddingDimension = envInt("POLICYRAG_EMBEDDING_DIMENSION", config.EmbeddingDimension)
	config.LLMModel = envString("POLICYRAG_LLM_MODEL", config.LLMModel)
	config.Temperature = float32(envFloat("POLICYRAG_TEMPERATURE", float64(config.Temperature)))
	config.EmbeddingConcurrency = envInt("POLICYRAG_EMBEDDING_CONCURRENCY", config.EmbeddingConcurrency)
	config.MaxRetries = envInt("POLICYRAG_MAX_RETRIES", config.MaxRetries)
	config.IndexName = envString("POLICYRAG_INDEX_NAME", config.IndexName)
	config.DocsDir = envString("POLICYRAG_DOCS_DIR", config.DocsDir)
	config.ResultsDir = envString("POLICYRAG_RESULTS_DIR", config.ResultsDir)
	if timeout := envInt("POLICYRAG_REQUEST_TIMEOUT_SECONDS", 0); timeout > 0 {
		config.RequestTimeout = time.Duration(timeout) * time.Second
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for invalid or incompatible values.
// It must be called before any external call is made.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [-1, 1], got %f", c.SimilarityThreshold)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.EmbeddingDimension)
	}
	if c.EmbeddingBackend != EmbeddingBackendOpenAI && c.EmbeddingBackend != EmbeddingBackendLocal {
		return fmt.Errorf("unknown embedding backend %q (use %q or %q)", c.EmbeddingBackend, EmbeddingBackendOpenAI, EmbeddingBackendLocal)
	}
	if c.EmbeddingConcurrency <= 0 {
		return fmt.Errorf("embedding concurrency must be positive, got %d", c.EmbeddingConcurrency)
	}
	if c.IndexName == "" {
		return fmt.Errorf("index name must not be empty")
	}
	return nil
}

// QueryConfig represents configuration for a single retrieval query
type QueryConfig struct {
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// DefaultQueryConfig returns the retrieval defaults from the pipeline configuration
func (c *Config) DefaultQueryConfig() *QueryConfig {
	return &QueryConfig{
		TopK:                c.TopK,
		SimilarityThreshold: c.SimilarityThreshold,
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
