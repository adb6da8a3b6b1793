package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up by LoadFromDir.
const FileName = "docrag.yaml"

// Config holds all configuration for docrag.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Generate  GenerateConfig  `yaml:"generate"`
	Chat      ChatConfig      `yaml:"chat"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig holds the database folder layout.
type StorageConfig struct {
	DBFolder string   `yaml:"db_folder"`
	Backend  string   `yaml:"backend"` // "chromem" or "bolt"
	Compress bool     `yaml:"compress"`
	Includes []string `yaml:"includes"` // globs used when ingesting a directory
	Excludes []string `yaml:"excludes"`
}

// ChunkingConfig holds text splitting parameters, counted in characters.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`    // "gemini", "openai", "ollama", "hash"
	Model     string `yaml:"model"`       // e.g., "text-embedding-004"
	APIKeyEnv string `yaml:"api_key_env"` // empty uses the provider's default variable
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
}

// LLMConfig holds chat model configuration.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "gemini", "openai", "ollama"
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float32 `yaml:"temperature"`
}

// RetrieveConfig holds retrieval defaults for queries.
type RetrieveConfig struct {
	K            int  `yaml:"k"`
	UseReranking bool `yaml:"use_reranking"`
	RerankTopK   int  `yaml:"rerank_top_k"` // 0 keeps k

	// Retrieval results are cached until the next ingest. 0 disables.
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// GenerateConfig holds answer generation settings.
type GenerateConfig struct {
	NoiseTokens []string `yaml:"noise_tokens"`
}

// ChatConfig holds session chat settings.
type ChatConfig struct {
	SessionBackend string        `yaml:"session_backend"` // "memory", "bolt", "redis"
	MaxHistory     int           `yaml:"max_history"`
	RedisAddr      string        `yaml:"redis_addr"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// IngestRoot restricts /ai/rag/ingest paths. serve falls back to the
	// root directory when it is empty.
	IngestRoot string `yaml:"ingest_root,omitempty"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// DefaultNoiseTokens are stripped from chunk text before it reaches the prompt.
var DefaultNoiseTokens = []string{"Tokenizer", "Parser", "SAMPLE TEXT", "Name Finder", "POS Tagger", "PRE PROCESSOR"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DBFolder: "db",
			Backend:  "chromem",
			Includes: []string{"**/*.pdf", "**/*.txt", "**/*.md"},
			Excludes: []string{"**/.git/**", "**/processed/**"},
		},
		Chunking: ChunkingConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Embedding: EmbeddingConfig{
			Provider:  "gemini",
			Model:     "text-embedding-004",
			Dimension: 768,
		},
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			Temperature: 0.2,
		},
		Retrieve: RetrieveConfig{
			K:         3,
			CacheSize: 100,
			CacheTTL:  5 * time.Minute,
		},
		Generate: GenerateConfig{
			NoiseTokens: append([]string(nil), DefaultNoiseTokens...),
		},
		Chat: ChatConfig{
			SessionBackend: "memory",
			MaxHistory:     20,
			RedisAddr:      "localhost:6379",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, %d), got %d", c.Chunking.ChunkSize, c.Chunking.ChunkOverlap)
	}
	switch c.Storage.Backend {
	case "chromem", "bolt":
	default:
		return fmt.Errorf("unknown storage.backend: %s", c.Storage.Backend)
	}
	switch c.Chat.SessionBackend {
	case "memory", "bolt", "redis":
	default:
		return fmt.Errorf("unknown chat.session_backend: %s", c.Chat.SessionBackend)
	}
	if c.Retrieve.K <= 0 {
		return fmt.Errorf("retrieve.k must be positive, got %d", c.Retrieve.K)
	}
	return nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for docrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".docrag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ProcessedDir returns the folder holding copies of ingested sources.
func (c *Config) ProcessedDir() string {
	return filepath.Join(c.Storage.DBFolder, "processed")
}

// BoltPath returns the path to the bolt database file.
func (c *Config) BoltPath() string {
	return filepath.Join(c.Storage.DBFolder, "docrag.db")
}

// IndexDir returns the folder of the persistent chromem index.
func (c *Config) IndexDir() string {
	return filepath.Join(c.Storage.DBFolder, "index")
}
