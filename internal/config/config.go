// Package config loads hybridrag configuration from defaults, YAML files,
// a .env file and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the per-directory configuration file.
const ProjectConfigName = ".hybridrag.yaml"

// Config is the complete hybridrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Embedding  EmbeddingConfig  `yaml:"embedding" json:"embedding"`
	Dense      DenseConfig      `yaml:"dense" json:"dense"`
	Lexical    LexicalConfig    `yaml:"lexical" json:"lexical"`
	Chunks     ChunksConfig     `yaml:"chunks" json:"chunks"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Reranker   RerankerConfig   `yaml:"reranker" json:"reranker"`
	Boost      BoostConfig      `yaml:"boost" json:"boost"`
	Validation ValidationConfig `yaml:"validation" json:"validation"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// EmbeddingConfig configures the external embedding service.
type EmbeddingConfig struct {
	// Endpoint is the base URL; requests go to {Endpoint}/embeddings.
	Endpoint string `yaml:"endpoint" json:"endpoint" env:"OLLAMA_URL"`
	Model    string `yaml:"model" json:"model" env:"EMBED_MODEL"`

	// Timeout bounds a single embedding call.
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"OLLAMA_TIMEOUT"`

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries" json:"max_retries" env:"OLLAMA_MAX_RETRIES"`

	// RateLimit is the number of calls allowed per minute, process-wide.
	RateLimit int `yaml:"rate_limit" json:"rate_limit" env:"OLLAMA_RATE_LIMIT"`

	// Dimensions is the expected vector size. Zero skips the check.
	Dimensions int `yaml:"dimensions" json:"dimensions" env:"EMBED_DIMENSIONS"`
}

// DenseConfig selects and configures the vector index.
type DenseConfig struct {
	// Backend is "hnsw" (local graph file) or "qdrant".
	Backend string `yaml:"backend" json:"backend" env:"DENSE_BACKEND"`

	// Path is the exported HNSW graph; its id map sits next to it with a .meta suffix.
	Path string `yaml:"path" json:"path" env:"DENSE_INDEX"`

	QdrantHost       string `yaml:"qdrant_host" json:"qdrant_host" env:"QDRANT_HOST"`
	QdrantPort       int    `yaml:"qdrant_port" json:"qdrant_port" env:"QDRANT_PORT"`
	QdrantAPIKey     string `yaml:"qdrant_api_key" json:"-" env:"QDRANT_API_KEY"`
	QdrantUseTLS     bool   `yaml:"qdrant_use_tls" json:"qdrant_use_tls" env:"QDRANT_USE_TLS"`
	QdrantCollection string `yaml:"qdrant_collection" json:"qdrant_collection" env:"QDRANT_COLLECTION"`

	// Timeout bounds a single vector query.
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"DENSE_TIMEOUT"`
}

// LexicalConfig configures the BM25 index.
type LexicalConfig struct {
	// Path is a prebuilt bleve index opened read-only.
	// Empty builds the index in memory from the chunk store at startup.
	Path string `yaml:"path" json:"path" env:"LEXICAL_INDEX"`
}

// ChunksConfig configures the persisted chunk store.
type ChunksConfig struct {
	// Path is a JSONL file or a SQLite database (.db, .sqlite).
	Path string `yaml:"path" json:"path" env:"CHUNKS_FILE"`

	MaxMetadataItems      int `yaml:"max_metadata_items" json:"max_metadata_items" env:"MAX_METADATA_ITEMS"`
	MaxMetadataItemLength int `yaml:"max_metadata_item_length" json:"max_metadata_item_length" env:"MAX_METADATA_ITEM_LENGTH"`
}

// RetrievalConfig tunes the retrieval pipeline.
type RetrievalConfig struct {
	// TopKRetrieval is how many candidates each of dense and lexical search return.
	TopKRetrieval int `yaml:"top_k_retrieval" json:"top_k_retrieval" env:"TOP_K_RETRIEVAL"`

	// TopKRRF is how many fused candidates reach the reranker.
	TopKRRF int `yaml:"top_k_rrf" json:"top_k_rrf" env:"TOP_K_RRF"`

	// TopK is the default number of results returned.
	TopK int `yaml:"top_k" json:"top_k" env:"TOP_K_RERANK"`

	// RRFK is the RRF smoothing constant.
	RRFK int `yaml:"rrf_k" json:"rrf_k" env:"RRF_K"`

	// ConfidenceThreshold marks results below it as low confidence.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
}

// RerankerConfig configures the optional cross-encoder.
type RerankerConfig struct {
	// Disabled forces the pass-through reranker.
	Disabled bool `yaml:"disabled" json:"disabled" env:"DISABLE_RERANKER"`

	// Endpoint is the reranker base URL. Empty means no reranker.
	Endpoint string        `yaml:"endpoint" json:"endpoint" env:"RERANKER_URL"`
	Model    string        `yaml:"model" json:"model" env:"RERANKER_MODEL"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" env:"RERANKER_TIMEOUT"`

	// Logits maps raw scores through a logistic function.
	Logits bool `yaml:"logits" json:"logits" env:"RERANKER_LOGITS"`

	// CacheSize is the number of (query, document) scores kept. Zero disables the cache.
	CacheSize int `yaml:"cache_size" json:"cache_size" env:"RERANKER_CACHE_SIZE"`

	// MaxFailures opens the circuit breaker after that many consecutive failures.
	MaxFailures  int           `yaml:"max_failures" json:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
}

// BoostConfig holds the category tiers of the metadata booster.
type BoostConfig struct {
	ExactCategory   float64 `yaml:"exact_category" json:"exact_category" env:"BOOST_EXACT_CATEGORY"`
	RelatedCategory float64 `yaml:"related_category" json:"related_category" env:"BOOST_RELATED_CATEGORY"`

	// RelatedCategories maps a query category hint to the chunk categories
	// that earn the related tier. The relation is directed.
	RelatedCategories map[string][]string `yaml:"related_categories" json:"related_categories"`
}

// ValidationConfig bounds query input.
type ValidationConfig struct {
	MaxQueryLength int `yaml:"max_query_length" json:"max_query_length" env:"MAX_QUERY_LENGTH"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level" env:"LOG_LEVEL"`
	File      string `yaml:"file" json:"file" env:"LOG_FILE"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	// Transport is "stdio" (MCP) or "http".
	Transport string `yaml:"transport" json:"transport" env:"HYBRIDRAG_TRANSPORT"`
	Addr      string `yaml:"addr" json:"addr" env:"HYBRIDRAG_ADDR"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// DefaultRelatedCategories is the compiled-in related-category table.
func DefaultRelatedCategories() map[string][]string {
	return map[string][]string{
		"backend":       {"loadbalancing", "healthcheck", "timeout"},
		"loadbalancing": {"backend", "healthcheck"},
		"healthcheck":   {"loadbalancing", "backend"},
		"frontend":      {"ssl", "acl"},
		"ssl":           {"frontend"},
		"acl":           {"frontend", "stick-table"},
		"stick-table":   {"acl"},
		"timeout":       {"backend"},
		"logs":          {"stats"},
		"stats":         {"logs"},
	}
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Embedding: EmbeddingConfig{
			Endpoint:   "http://localhost:11434/api",
			Model:      "qwen3-embedding:8b",
			Timeout:    120 * time.Second,
			MaxRetries: 3,
			RateLimit:  30,
		},
		Dense: DenseConfig{
			Backend:          "hnsw",
			Path:             filepath.Join("index", "dense.hnsw"),
			QdrantHost:       "localhost",
			QdrantPort:       6334,
			QdrantCollection: "haproxy_docs",
			Timeout:          10 * time.Second,
		},
		Chunks: ChunksConfig{
			Path:                  filepath.Join("index", "chunks.jsonl"),
			MaxMetadataItems:      20,
			MaxMetadataItemLength: 100,
		},
		Retrieval: RetrievalConfig{
			TopKRetrieval:       50,
			TopKRRF:             30,
			TopK:                10,
			RRFK:                60,
			ConfidenceThreshold: 0.0,
		},
		Reranker: RerankerConfig{
			Model:        "ms-marco-MiniLM-L-12-v2",
			Timeout:      30 * time.Second,
			CacheSize:    1024,
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		},
		Boost: BoostConfig{
			ExactCategory:     0.3,
			RelatedCategory:   0.15,
			RelatedCategories: DefaultRelatedCategories(),
		},
		Validation: ValidationConfig{
			MaxQueryLength: 2000,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Server: ServerConfig{
			Transport:    "stdio",
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 150 * time.Second,
		},
	}
}

// GetUserConfigPath returns the user configuration file:
//   - $XDG_CONFIG_HOME/hybridrag/config.yaml when XDG_CONFIG_HOME is set
//   - ~/.config/hybridrag/config.yaml otherwise
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hybridrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "hybridrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "hybridrag", "config.yaml")
}

// Load builds the configuration for dir in order of increasing precedence:
//  1. Defaults
//  2. User config (~/.config/hybridrag/config.yaml)
//  3. Project config (.hybridrag.yaml in dir)
//  4. dir/.env, which never overrides variables already set
//  5. Environment variables
//
// Relative index paths are resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadIfExists(GetUserConfigPath()); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	if err := cfg.loadIfExists(filepath.Join(dir, ProjectConfigName)); err != nil {
		return nil, err
	}

	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadIfExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return c.loadYAML(path)
}

// loadYAML merges the non-zero values of a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)

	var explicit explicitFields
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	explicit.apply(c)
	return nil
}

// explicitFields holds the keys whose zero value is meaningful. They are
// applied whenever a file names them, so a later layer can switch a
// boolean off or set a weight to 0.
type explicitFields struct {
	Dense struct {
		QdrantUseTLS *bool `yaml:"qdrant_use_tls"`
	} `yaml:"dense"`
	Retrieval struct {
		ConfidenceThreshold *float64 `yaml:"confidence_threshold"`
	} `yaml:"retrieval"`
	Reranker struct {
		Disabled  *bool `yaml:"disabled"`
		Logits    *bool `yaml:"logits"`
		CacheSize *int  `yaml:"cache_size"`
	} `yaml:"reranker"`
	Boost struct {
		ExactCategory   *float64 `yaml:"exact_category"`
		RelatedCategory *float64 `yaml:"related_category"`
	} `yaml:"boost"`
}

func (e *explicitFields) apply(c *Config) {
	setPtr(&c.Dense.QdrantUseTLS, e.Dense.QdrantUseTLS)
	setPtr(&c.Retrieval.ConfidenceThreshold, e.Retrieval.ConfidenceThreshold)
	setPtr(&c.Reranker.Disabled, e.Reranker.Disabled)
	setPtr(&c.Reranker.Logits, e.Reranker.Logits)
	setPtr(&c.Reranker.CacheSize, e.Reranker.CacheSize)
	setPtr(&c.Boost.ExactCategory, e.Boost.ExactCategory)
	setPtr(&c.Boost.RelatedCategory, e.Boost.RelatedCategory)
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// mergeWith copies the non-zero values of other into c. Keys with a
// meaningful zero value are applied afterwards by explicitFields.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Embedding
	setString(&c.Embedding.Endpoint, other.Embedding.Endpoint)
	setString(&c.Embedding.Model, other.Embedding.Model)
	setDuration(&c.Embedding.Timeout, other.Embedding.Timeout)
	setInt(&c.Embedding.MaxRetries, other.Embedding.MaxRetries)
	setInt(&c.Embedding.RateLimit, other.Embedding.RateLimit)
	setInt(&c.Embedding.Dimensions, other.Embedding.Dimensions)

	// Dense
	setString(&c.Dense.Backend, other.Dense.Backend)
	setString(&c.Dense.Path, other.Dense.Path)
	setString(&c.Dense.QdrantHost, other.Dense.QdrantHost)
	setInt(&c.Dense.QdrantPort, other.Dense.QdrantPort)
	setString(&c.Dense.QdrantAPIKey, other.Dense.QdrantAPIKey)
	setString(&c.Dense.QdrantCollection, other.Dense.QdrantCollection)
	setDuration(&c.Dense.Timeout, other.Dense.Timeout)
	if other.Dense.QdrantUseTLS {
		c.Dense.QdrantUseTLS = true
	}

	// Lexical and chunks
	setString(&c.Lexical.Path, other.Lexical.Path)
	setString(&c.Chunks.Path, other.Chunks.Path)
	setInt(&c.Chunks.MaxMetadataItems, other.Chunks.MaxMetadataItems)
	setInt(&c.Chunks.MaxMetadataItemLength, other.Chunks.MaxMetadataItemLength)

	// Retrieval. A zero threshold is the default, so only non-zero values merge.
	setInt(&c.Retrieval.TopKRetrieval, other.Retrieval.TopKRetrieval)
	setInt(&c.Retrieval.TopKRRF, other.Retrieval.TopKRRF)
	setInt(&c.Retrieval.TopK, other.Retrieval.TopK)
	setInt(&c.Retrieval.RRFK, other.Retrieval.RRFK)
	if other.Retrieval.ConfidenceThreshold != 0 {
		c.Retrieval.ConfidenceThreshold = other.Retrieval.ConfidenceThreshold
	}

	// Reranker
	if other.Reranker.Disabled {
		c.Reranker.Disabled = true
	}
	if other.Reranker.Logits {
		c.Reranker.Logits = true
	}
	setString(&c.Reranker.Endpoint, other.Reranker.Endpoint)
	setString(&c.Reranker.Model, other.Reranker.Model)
	setDuration(&c.Reranker.Timeout, other.Reranker.Timeout)
	setInt(&c.Reranker.CacheSize, other.Reranker.CacheSize)
	setInt(&c.Reranker.MaxFailures, other.Reranker.MaxFailures)
	setDuration(&c.Reranker.ResetTimeout, other.Reranker.ResetTimeout)

	// Boost. A file table replaces the default table entirely.
	if other.Boost.ExactCategory != 0 {
		c.Boost.ExactCategory = other.Boost.ExactCategory
	}
	if other.Boost.RelatedCategory != 0 {
		c.Boost.RelatedCategory = other.Boost.RelatedCategory
	}
	if other.Boost.RelatedCategories != nil {
		c.Boost.RelatedCategories = other.Boost.RelatedCategories
	}

	setInt(&c.Validation.MaxQueryLength, other.Validation.MaxQueryLength)

	// Logging
	setString(&c.Logging.Level, other.Logging.Level)
	setString(&c.Logging.File, other.Logging.File)
	setInt(&c.Logging.MaxSizeMB, other.Logging.MaxSizeMB)
	setInt(&c.Logging.MaxFiles, other.Logging.MaxFiles)

	// Server
	setString(&c.Server.Transport, other.Server.Transport)
	setString(&c.Server.Addr, other.Server.Addr)
	setDuration(&c.Server.ReadTimeout, other.Server.ReadTimeout)
	setDuration(&c.Server.WriteTimeout, other.Server.WriteTimeout)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// resolvePaths makes relative index paths relative to dir.
func (c *Config) resolvePaths(dir string) {
	for _, p := range []*string{&c.Chunks.Path, &c.Dense.Path, &c.Lexical.Path} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate returns an error describing the first invalid setting.
func (c *Config) Validate() error {
	if c.Embedding.Endpoint == "" {
		return fmt.Errorf("embedding.endpoint must be set")
	}
	if c.Embedding.Timeout <= 0 {
		return fmt.Errorf("embedding.timeout must be positive, got %s", c.Embedding.Timeout)
	}
	if c.Embedding.MaxRetries < 0 {
		return fmt.Errorf("embedding.max_retries must be non-negative, got %d", c.Embedding.MaxRetries)
	}
	if c.Embedding.RateLimit <= 0 {
		return fmt.Errorf("embedding.rate_limit must be positive, got %d", c.Embedding.RateLimit)
	}

	switch strings.ToLower(c.Dense.Backend) {
	case "hnsw":
		if c.Dense.Path == "" {
			return fmt.Errorf("dense.path is required for the hnsw backend")
		}
	case "qdrant":
		if c.Dense.QdrantHost == "" || c.Dense.QdrantCollection == "" {
			return fmt.Errorf("dense.qdrant_host and dense.qdrant_collection are required for the qdrant backend")
		}
	default:
		return fmt.Errorf("dense.backend must be 'hnsw' or 'qdrant', got %s", c.Dense.Backend)
	}

	if c.Chunks.Path == "" {
		return fmt.Errorf("chunks.path must be set")
	}
	if c.Chunks.MaxMetadataItems <= 0 || c.Chunks.MaxMetadataItemLength <= 0 {
		return fmt.Errorf("chunks metadata limits must be positive")
	}

	r := c.Retrieval
	if r.TopKRetrieval <= 0 || r.TopKRRF <= 0 || r.TopK <= 0 {
		return fmt.Errorf("retrieval top_k values must be positive")
	}
	if r.RRFK < 0 {
		return fmt.Errorf("retrieval.rrf_k must be non-negative, got %d", r.RRFK)
	}
	if r.ConfidenceThreshold < 0 {
		return fmt.Errorf("retrieval.confidence_threshold must be non-negative, got %f", r.ConfidenceThreshold)
	}

	if c.Boost.ExactCategory < 0 || c.Boost.RelatedCategory < 0 {
		return fmt.Errorf("boost category values must be non-negative")
	}
	if c.Validation.MaxQueryLength <= 0 {
		return fmt.Errorf("validation.max_query_length must be positive, got %d", c.Validation.MaxQueryLength)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	validTransports := map[string]bool{"stdio": true, "http": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'http', got %s", c.Server.Transport)
	}

	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
