// Package config loads service configuration. Precedence, highest first:
// environment variables, the YAML config file, hardcoded defaults. A few
// legacy environment names from earlier deployments are honoured as
// aliases so existing compose files keep working.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024

// Config is the complete knowledged configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Stores        StoresConfig        `koanf:"stores"`
	Postgres      PostgresConfig      `koanf:"postgres"`
	Neo4j         Neo4jConfig         `koanf:"neo4j"`
	NATS          NATSConfig          `koanf:"nats"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Fanout        FanoutConfig        `koanf:"fanout"`
	LLM           LLMConfig           `koanf:"llm"`
	Qdrant        QdrantConfig        `koanf:"qdrant"`
	Chromem       ChromemConfig       `koanf:"chromem"`
	Query         QueryConfig         `koanf:"query"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// DiagramsDir serves static architecture diagrams when set.
	DiagramsDir string `koanf:"diagrams_dir"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	ServiceName     string `koanf:"service_name"`
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
}

// StoresConfig selects the backing implementations.
type StoresConfig struct {
	// Relational is "memory" or "postgres".
	Relational string `koanf:"relational"`
	// Graph is "memory" or "neo4j".
	Graph string `koanf:"graph"`
	// VectorIndex is "chromem" or "qdrant".
	VectorIndex string `koanf:"vector_index"`
}

// PostgresConfig holds the relational store connection settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	DB       string `koanf:"db"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	MaxConns int    `koanf:"max_conns"`
}

// Neo4jConfig holds the graph store connection settings.
type Neo4jConfig struct {
	URI      string `koanf:"uri"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
}

// NATSConfig holds the dispatch broker settings.
type NATSConfig struct {
	URL           string `koanf:"url"`
	Stream        string `koanf:"stream"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// PipelineConfig holds retry and deadline knobs for the async pipelines.
type PipelineConfig struct {
	RetryMax          int `koanf:"retry_max"`
	RetryBaseMS       int `koanf:"retry_base_ms"`
	RetryCapMS        int `koanf:"retry_cap_ms"`
	StageDeadlineSec  int `koanf:"stage_deadline_sec"`
	SearchDeadlineSec int `koanf:"search_deadline_sec"`
	TopKDefault       int `koanf:"top_k_default"`
}

// FanoutConfig holds webhook delivery settings.
type FanoutConfig struct {
	Concurrency int `koanf:"concurrency"`
	TimeoutSec  int `koanf:"timeout_sec"`
	MaxAttempts int `koanf:"max_attempts"`
}

// LLMConfig holds the language model provider settings.
type LLMConfig struct {
	APIKey            string  `koanf:"api_key"`
	BaseURL           string  `koanf:"base_url"`
	EmbeddingModel    string  `koanf:"embedding_model"`
	ChatModel         string  `koanf:"chat_model"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	WalletBaseURL     string  `koanf:"wallet_base_url"`
}

// QdrantConfig holds the external vector index settings.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
}

// ChromemConfig holds the embedded vector index settings.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
}

// QueryConfig holds the RAG prompt settings.
type QueryConfig struct {
	// PromptTemplate uses {query} and {context} placeholders. Empty means
	// the built-in default.
	PromptTemplate string `koanf:"prompt_template"`
}

// Load reads configuration from the optional YAML file at configPath, then
// overrides with environment variables. An empty path skips the file.
//
// Environment variables use the SECTION_FIELD_NAME convention:
//
//	SERVER_PORT          -> server.port
//	POSTGRES_PASSWORD    -> postgres.password
//	PIPELINE_RETRY_MAX   -> pipeline.retry_max
//	FANOUT_CONCURRENCY   -> fanout.concurrency
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		info, err := os.Stat(configPath)
		switch {
		case err == nil:
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
			}
			content, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		case os.IsNotExist(err):
			// Absent file is fine, env and defaults still apply.
		default:
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", transformEnv), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyAliases(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// transformEnv maps SECTION_FIELD_NAME to section.field_name. The split is
// on the first underscore only so compound field names survive.
func transformEnv(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// applyAliases honours legacy environment names that predate the
// SECTION_FIELD convention.
func applyAliases(cfg *Config) {
	if v := os.Getenv("X_NEO4J_URI"); v != "" {
		cfg.Neo4j.URI = v
	}
	// NEO4J_AUTH carries "user/password" as a single value.
	if v := os.Getenv("NEO4J_AUTH"); v != "" {
		if user, password, ok := strings.Cut(v, "/"); ok {
			cfg.Neo4j.User = user
			cfg.Neo4j.Password = password
		}
	}
	if v := os.Getenv("CELERY_BROKER_URL"); v != "" && cfg.NATS.URL == "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("RELATIONAL_STORE"); v != "" {
		cfg.Stores.Relational = v
	}
	if v := os.Getenv("GRAPH_STORE"); v != "" {
		cfg.Stores.Graph = v
	}
	if v := os.Getenv("VECTOR_INDEX"); v != "" {
		cfg.Stores.VectorIndex = v
	}
	if v := os.Getenv("STAGE_DEADLINE_SEC"); v != "" {
		cfg.Pipeline.StageDeadlineSec = atoiOr(v, cfg.Pipeline.StageDeadlineSec)
	}
	if v := os.Getenv("SEARCH_DEADLINE_SEC"); v != "" {
		cfg.Pipeline.SearchDeadlineSec = atoiOr(v, cfg.Pipeline.SearchDeadlineSec)
	}
	if v := os.Getenv("TOP_K_DEFAULT"); v != "" {
		cfg.Pipeline.TopKDefault = atoiOr(v, cfg.Pipeline.TopKDefault)
	}
}

func atoiOr(s string, fallback int) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "knowledged"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}

	if cfg.Stores.Relational == "" {
		cfg.Stores.Relational = "memory"
	}
	if cfg.Stores.Graph == "" {
		cfg.Stores.Graph = "memory"
	}
	if cfg.Stores.VectorIndex == "" {
		cfg.Stores.VectorIndex = "chromem"
	}

	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.DB == "" {
		cfg.Postgres.DB = "knowledged"
	}

	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = "bolt://localhost:7687"
	}
	if cfg.Neo4j.User == "" {
		cfg.Neo4j.User = "neo4j"
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = "KNOWLEDGED"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "ks"
	}

	if cfg.Pipeline.RetryMax == 0 {
		cfg.Pipeline.RetryMax = 5
	}
	if cfg.Pipeline.RetryBaseMS == 0 {
		cfg.Pipeline.RetryBaseMS = 1000
	}
	if cfg.Pipeline.RetryCapMS == 0 {
		cfg.Pipeline.RetryCapMS = 60000
	}
	if cfg.Pipeline.StageDeadlineSec == 0 {
		cfg.Pipeline.StageDeadlineSec = 600
	}
	if cfg.Pipeline.SearchDeadlineSec == 0 {
		cfg.Pipeline.SearchDeadlineSec = 120
	}
	if cfg.Pipeline.TopKDefault == 0 {
		cfg.Pipeline.TopKDefault = 16
	}

	if cfg.Fanout.Concurrency == 0 {
		cfg.Fanout.Concurrency = 8
	}
	if cfg.Fanout.TimeoutSec == 0 {
		cfg.Fanout.TimeoutSec = 30
	}
	if cfg.Fanout.MaxAttempts == 0 {
		cfg.Fanout.MaxAttempts = 3
	}

	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.LLM.RequestsPerSecond == 0 {
		cfg.LLM.RequestsPerSecond = 10
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "knowledged_chunks"
	}
	if cfg.Chromem.Collection == "" {
		cfg.Chromem.Collection = "knowledged_chunks"
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	switch c.Stores.Relational {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown relational store %q (memory or postgres)", c.Stores.Relational)
	}
	switch c.Stores.Graph {
	case "memory", "neo4j":
	default:
		return fmt.Errorf("unknown graph store %q (memory or neo4j)", c.Stores.Graph)
	}
	switch c.Stores.VectorIndex {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown vector index %q (chromem or qdrant)", c.Stores.VectorIndex)
	}
	if c.Stores.Relational == "postgres" && c.Postgres.User == "" {
		return errors.New("postgres user required when relational store is postgres")
	}
	if c.Stores.Graph == "neo4j" && c.Neo4j.Password == "" {
		return errors.New("neo4j password required when graph store is neo4j")
	}
	if c.Pipeline.RetryMax < 1 {
		return errors.New("pipeline retry max must be at least 1")
	}
	if c.Pipeline.TopKDefault < 1 {
		return errors.New("top k default must be at least 1")
	}
	if c.Fanout.Concurrency < 1 {
		return errors.New("fanout concurrency must be at least 1")
	}
	return nil
}

// StageDeadline returns the per-stage execution bound.
func (c *Config) StageDeadline() time.Duration {
	return time.Duration(c.Pipeline.StageDeadlineSec) * time.Second
}

// SearchDeadline returns the end-to-end search bound.
func (c *Config) SearchDeadline() time.Duration {
	return time.Duration(c.Pipeline.SearchDeadlineSec) * time.Second
}

// RetryBase returns the first retry delay.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.Pipeline.RetryBaseMS) * time.Millisecond
}

// RetryCap returns the retry delay ceiling.
func (c *Config) RetryCap() time.Duration {
	return time.Duration(c.Pipeline.RetryCapMS) * time.Millisecond
}
