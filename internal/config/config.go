// Package config provides configuration loading and structs for kontext.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vector     VectorConfig     `yaml:"vector"`
	Router     RouterConfig     `yaml:"router"`
	Cache      CacheConfig      `yaml:"cache"`
	Memory     MemoryConfig     `yaml:"memory"`
	Fusion     FusionConfig     `yaml:"fusion"`
	Compressor CompressorConfig `yaml:"compressor"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Watch      WatchConfig      `yaml:"watch"`
}

// StorageConfig holds paths for persisted state and data stores.
type StorageConfig struct {
	DataDir           string `yaml:"data_dir"`
	CacheDir          string `yaml:"cache_dir"`
	MemoryDir         string `yaml:"memory_dir"`
	DatabasePath      string `yaml:"database_path"`
	GraphPath         string `yaml:"graph_path"`
	VectorIndexPath   string `yaml:"vector_index_path"`
	DocumentIndexPath string `yaml:"document_index_path"`
}

// EmbeddingConfig selects and tunes the embedder.
type EmbeddingConfig struct {
	// Provider is "mock" or "http".
	Provider   string        `yaml:"provider"`
	URL        string        `yaml:"url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	// Type is "memory" or "qdrant".
	Type   string       `yaml:"type"`
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds connection settings for a remote Qdrant instance.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// RouterConfig holds routing settings.
type RouterConfig struct {
	Threshold  float64             `yaml:"threshold"`
	Examples   map[string][]string `yaml:"examples"`
	Classifier ClassifierConfig    `yaml:"classifier"`
}

// ClassifierConfig holds settings for the fallback LLM classifier.
type ClassifierConfig struct {
	Enabled *bool         `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// EnabledOrDefault returns whether the classifier is enabled; defaults to true when unset.
func (c *ClassifierConfig) EnabledOrDefault() bool {
	if c.Enabled != nil {
		return *c.Enabled
	}
	return true
}

// CacheConfig holds retrieval cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
	// Backends lists the backend names whose results are cached.
	Backends []string `yaml:"backends"`
}

// MemoryConfig holds conversation memory settings.
type MemoryConfig struct {
	WindowSize  int `yaml:"window_size"`
	RecentTurns int `yaml:"recent_turns"`
}

// FusionConfig holds cross-source fusion settings.
type FusionConfig struct {
	TopUnconditional int                `yaml:"top_unconditional"`
	DiversityWindow  int                `yaml:"diversity_window"`
	MaxItems         int                `yaml:"max_items"`
	Weights          map[string]float64 `yaml:"weights"`
}

// CompressorConfig holds context compression settings.
type CompressorConfig struct {
	TokenBudget int `yaml:"token_budget"`
	// Estimator is "chars" or "tiktoken".
	Estimator string `yaml:"estimator"`
}

// PromptConfig holds prompt assembly settings.
type PromptConfig struct {
	MaxLength int `yaml:"max_length"`
	// Variant overrides the automatic default/with_memory choice when set.
	Variant string `yaml:"variant"`
}

// RetrievalConfig holds per-backend retrieval limits and document chunking settings.
type RetrievalConfig struct {
	SemanticK       int     `yaml:"semantic_k"`
	StructuredLimit int     `yaml:"structured_limit"`
	RelationalLimit int     `yaml:"relational_limit"`
	KeywordWeight   float64 `yaml:"keyword_weight"`
	SemanticWeight  float64 `yaml:"semantic_weight"`
	ChunkSize       int     `yaml:"chunk_size"`
	ChunkOverlap    int     `yaml:"chunk_overlap"`
}

// WatchConfig holds file watch settings. When enabled the graph file is reloaded on change
// and every directory in Dirs is kept in sync with the document store.
type WatchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Debounce   time.Duration `yaml:"debounce"`
	Dirs       []string      `yaml:"dirs"`
	Extensions []string      `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.ExpandPaths(filepath.Dir(path))
	return &cfg, nil
}

// ExpandPaths resolves every storage path against configDir.
func (c *Config) ExpandPaths(configDir string) {
	s := &c.Storage
	for _, p := range []*string{
		&s.DataDir, &s.CacheDir, &s.MemoryDir, &s.DatabasePath,
		&s.GraphPath, &s.VectorIndexPath, &s.DocumentIndexPath,
	} {
		*p = expandPath(*p, configDir)
	}
	for i := range c.Watch.Dirs {
		c.Watch.Dirs[i] = expandPath(c.Watch.Dirs[i], configDir)
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
