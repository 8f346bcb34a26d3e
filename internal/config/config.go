// Package config holds agentvault configuration, loaded from a YAML file
// with defaults applied for anything left unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all agentvault configuration.
type Config struct {
	// DataDir is the root directory for all persisted state. Adapter
	// paths default to subdirectories of it.
	DataDir string `yaml:"data_dir"`

	Relational RelationalConfig `yaml:"relational"`
	Document   DocumentConfig   `yaml:"document"`
	Vector     VectorConfig     `yaml:"vector"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RelationalConfig configures the SQLite-backed relational adapter.
type RelationalConfig struct {
	Path       string `yaml:"path"`        // Default: <data_dir>/sessions.db
	Workers    int    `yaml:"workers"`     // Worker pool size (default: 4)
	QueueDepth int    `yaml:"queue_depth"` // Bounded queue; a full queue blocks submitters (default: 64)
}

// DocumentConfig configures the on-disk document adapter. Its pool is
// deliberately smaller than the relational one.
type DocumentConfig struct {
	Dir        string `yaml:"dir"`         // Default: <data_dir>/contexts
	Workers    int    `yaml:"workers"`     // Default: 2
	QueueDepth int    `yaml:"queue_depth"` // Default: 32
}

// VectorConfig configures the vector adapter and its index.
type VectorConfig struct {
	Dir        string `yaml:"dir"`         // Default: <data_dir>/vectors
	Workers    int    `yaml:"workers"`     // Default: 1 - serializes mutations so concurrent saves cannot lose updates
	QueueDepth int    `yaml:"queue_depth"` // Default: 32

	// Index selects the similarity index implementation:
	// "memory" (exact brute force, default) or "sqlite-vec" (ANN,
	// requires a binary built with the sqlite_vec tag).
	Index string `yaml:"index"`

	// Dimensions is the embedding dimensionality the index expects.
	// Must match the embedding provider's output. Default: 256.
	Dimensions int `yaml:"dimensions"`

	// MaxVectors is the soft size threshold for the memory index. The
	// whole set is rewritten to disk on every mutation (O(n) per write),
	// which is only acceptable below this count; crossing it logs a
	// warning suggesting the sqlite-vec index. Default: 10000.
	MaxVectors int `yaml:"max_vectors"`
}

// EmbeddingConfig configures the vector embedding engine.
// Supports a deterministic offline projection plus the Ollama (local)
// and GenAI (cloud) backends.
type EmbeddingConfig struct {
	// Provider: "deterministic", "ollama" or "genai"
	Provider string `yaml:"provider"`

	// Dimensions for the deterministic provider. Default: 256.
	Dimensions int `yaml:"dimensions"`

	// Ollama Configuration (local embedding server)
	OllamaEndpoint string `yaml:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `yaml:"ollama_model"`    // Default: "embeddinggemma"

	// GenAI Configuration (Google cloud embedding)
	GenAIAPIKey string `yaml:"genai_api_key"` // Falls back to GENAI_API_KEY env var
	GenAIModel  string `yaml:"genai_model"`   // Default: "gemini-embedding-001"
	TaskType    string `yaml:"task_type"`     // Default: "SEMANTIC_SIMILARITY"
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"` // Master toggle - false = no logging (production)
	Level      string          `yaml:"level"`      // debug, info, warn, error
	Dir        string          `yaml:"dir"`        // Default: <data_dir>/logs
	Categories map[string]bool `yaml:"categories"` // Per-category toggles
}

// DefaultConfig returns the default configuration rooted at dataDir.
func DefaultConfig(dataDir string) Config {
	cfg := Config{DataDir: dataDir}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults; a malformed file is an error. The GenAI API key may be
// supplied via the GENAI_API_KEY environment variable instead of the
// file.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = ".agentvault"
	}
	if c.Relational.Path == "" {
		c.Relational.Path = filepath.Join(c.DataDir, "sessions.db")
	}
	if c.Relational.Workers <= 0 {
		c.Relational.Workers = 4
	}
	if c.Relational.QueueDepth <= 0 {
		c.Relational.QueueDepth = 64
	}
	if c.Document.Dir == "" {
		c.Document.Dir = filepath.Join(c.DataDir, "contexts")
	}
	if c.Document.Workers <= 0 {
		c.Document.Workers = 2
	}
	if c.Document.QueueDepth <= 0 {
		c.Document.QueueDepth = 32
	}
	if c.Vector.Dir == "" {
		c.Vector.Dir = filepath.Join(c.DataDir, "vectors")
	}
	if c.Vector.Workers <= 0 {
		c.Vector.Workers = 1
	}
	if c.Vector.QueueDepth <= 0 {
		c.Vector.QueueDepth = 32
	}
	if c.Vector.Index == "" {
		c.Vector.Index = "memory"
	}
	if c.Vector.Dimensions <= 0 {
		c.Vector.Dimensions = 256
	}
	if c.Vector.MaxVectors <= 0 {
		c.Vector.MaxVectors = 10000
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "deterministic"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = c.Vector.Dimensions
	}
	if c.Embedding.OllamaEndpoint == "" {
		c.Embedding.OllamaEndpoint = "http://localhost:11434"
	}
	if c.Embedding.OllamaModel == "" {
		c.Embedding.OllamaModel = "embeddinggemma"
	}
	if c.Embedding.GenAIAPIKey == "" {
		c.Embedding.GenAIAPIKey = os.Getenv("GENAI_API_KEY")
	}
	if c.Embedding.GenAIModel == "" {
		c.Embedding.GenAIModel = "gemini-embedding-001"
	}
	if c.Embedding.TaskType == "" {
		c.Embedding.TaskType = "SEMANTIC_SIMILARITY"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = filepath.Join(c.DataDir, "logs")
	}
}

// Validate checks cross-field constraints that defaults cannot fix.
func (c *Config) Validate() error {
	switch c.Vector.Index {
	case "memory", "sqlite-vec":
	default:
		return fmt.Errorf("unknown vector index %q (use \"memory\" or \"sqlite-vec\")", c.Vector.Index)
	}
	switch c.Embedding.Provider {
	case "deterministic", "ollama", "genai":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "genai" && c.Embedding.GenAIAPIKey == "" {
		return fmt.Errorf("genai embedding provider requires an API key (genai_api_key or GENAI_API_KEY)")
	}
	return nil
}
