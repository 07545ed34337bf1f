package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all los configuration. Every recognized key is a field;
// unknown keys in the YAML file are rejected by Load.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Tiers     TierConfig      `yaml:"tiers"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig selects the summarization provider used by Cold consolidation.
type LLMConfig struct {
	Provider     string `yaml:"provider"` // "anthropic", "ollama", "none"
	Model        string `yaml:"model"`
	OllamaURL    string `yaml:"ollama_url"`
	AnthropicKey string `yaml:"anthropic_key"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "ollama", "openai", "hashing"
	Model      string `yaml:"model"`
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"` // 0 uses the provider default
	BatchSize  int    `yaml:"batch_size"`
	CacheSize  int    `yaml:"cache_size"` // cached query embeddings, 0 disables
}

// RetrievalConfig controls chunking and similarity search.
type RetrievalConfig struct {
	TargetSize        int     `yaml:"target_size"`
	Overlap           int     `yaml:"overlap"`
	SmallDocThreshold int     `yaml:"small_doc_threshold"`
	SmallTargetSize   int     `yaml:"small_target_size"`
	TopK              int     `yaml:"top_k"`
	MinScore          float64 `yaml:"min_score"`
	Index             string  `yaml:"index"` // "scan" or "chromem"
}

// TierConfig controls Hot assembly and Warm→Cold consolidation.
type TierConfig struct {
	HotFacts         int           `yaml:"hot_facts"`
	HotInterests     int           `yaml:"hot_interests"`
	HotExcerpts      int           `yaml:"hot_excerpts"`
	MaxHotChars      int           `yaml:"max_hot_chars"`
	ColdAge          time.Duration `yaml:"cold_age"`
	CompressionRatio float64       `yaml:"compression_ratio"`
	MinSummaryChars  int           `yaml:"min_summary_chars"`
	BatchSize        int           `yaml:"batch_size"`
	Schedule         string        `yaml:"schedule"` // cron expression, empty disables
	PlanTTL          time.Duration `yaml:"plan_ttl"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider:  "none",
			OllamaURL: "http://localhost:11434",
		},
		Embedding: EmbeddingConfig{
			Provider:  "hashing",
			BatchSize: 32,
			CacheSize: 1024,
		},
		Retrieval: RetrievalConfig{
			TargetSize:        500,
			Overlap:           50,
			SmallDocThreshold: 1000,
			SmallTargetSize:   200,
			TopK:              5,
			MinScore:          0.05,
			Index:             "scan",
		},
		Tiers: TierConfig{
			HotFacts:         10,
			HotInterests:     5,
			HotExcerpts:      5,
			MaxHotChars:      4000,
			ColdAge:          90 * 24 * time.Hour,
			CompressionRatio: 100,
			MinSummaryChars:  280,
			BatchSize:        20,
			Schedule:         "@weekly",
			PlanTTL:          15 * time.Minute,
		},
	}
}

// Load reads a YAML config file over Default() and applies environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			dec := yaml.NewDecoder(f)
			dec.KnownFields(true)
			if err := dec.Decode(&cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return cfg, fmt.Errorf("open config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LOS_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("LOS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.LLM.OllamaURL = v
		if c.Embedding.Provider == "ollama" {
			c.Embedding.URL = v
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.LLM.AnthropicKey = v
		if c.LLM.Provider == "none" {
			c.LLM.Provider = "anthropic"
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Embedding.Provider == "openai" {
		c.Embedding.APIKey = v
	}
}

// Validate checks relationships between settings.
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.TargetSize <= 0 || r.SmallTargetSize <= 0 {
		return fmt.Errorf("retrieval: chunk sizes must be positive")
	}
	if r.Overlap < 0 || r.Overlap >= r.TargetSize {
		return fmt.Errorf("retrieval: overlap %d must be in [0, target_size)", r.Overlap)
	}
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval: top_k must be positive")
	}
	if r.MinScore < 0 || r.MinScore > 1 {
		return fmt.Errorf("retrieval: min_score %v outside [0,1]", r.MinScore)
	}
	switch r.Index {
	case "scan", "chromem":
	default:
		return fmt.Errorf("retrieval: unknown index %q", r.Index)
	}

	switch c.Embedding.Provider {
	case "ollama", "openai", "hashing":
	default:
		return fmt.Errorf("embedding: unknown provider %q", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding: batch_size must be positive")
	}

	switch c.LLM.Provider {
	case "anthropic", "ollama", "none":
	default:
		return fmt.Errorf("llm: unknown provider %q", c.LLM.Provider)
	}

	t := c.Tiers
	if t.CompressionRatio < 1 {
		return fmt.Errorf("tiers: compression_ratio must be >= 1")
	}
	if t.ColdAge <= 0 {
		return fmt.Errorf("tiers: cold_age must be positive")
	}
	if t.BatchSize <= 0 {
		return fmt.Errorf("tiers: batch_size must be positive")
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
