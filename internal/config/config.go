package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

type ServerConfig struct {
	Port string `toml:"port"`
	Mode string `toml:"mode"`
}

type PostgresConfig struct {
	DSN string `toml:"dsn"`
}

type Neo4jConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
}

type ExtractionPrompts struct {
	Entities      string `toml:"entities"`
	Relationships string `toml:"relationships"`
}

// ReconcileConfig tunes the consistency engine. RelationshipTypes narrows
// the built-in whitelist when non-empty; unknown names are dropped with a
// warning at startup, they can never mint new edge labels.
type ReconcileConfig struct {
	ConfidenceThreshold     float64  `toml:"confidence_threshold"`
	MinExtractionConfidence float64  `toml:"min_extraction_confidence"`
	RelationshipTypes       []string `toml:"relationship_types"`
	MaxDuplicateScan        int      `toml:"max_duplicate_scan"`
	DedupeThreshold         float64  `toml:"dedupe_threshold"`
	UseLLMDedupe            bool     `toml:"use_llm_dedupe"`
	TimeoutSeconds          int      `toml:"timeout_seconds"`
}

type EmbedIndexConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type Config struct {
	Server     ServerConfig      `toml:"server"`
	Postgres   PostgresConfig    `toml:"postgres"`
	Neo4j      Neo4jConfig       `toml:"neo4j"`
	LLM        LLMConfig         `toml:"llm"`
	Extraction ExtractionPrompts `toml:"extraction"`
	Reconcile  ReconcileConfig   `toml:"reconcile"`
	EmbedIndex EmbedIndexConfig  `toml:"embedindex"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "dev",
		},
		Neo4j: Neo4jConfig{
			URI: "bolt://localhost:7687",
		},
		Reconcile: ReconcileConfig{
			ConfidenceThreshold:     0.7,
			MinExtractionConfidence: 0.5,
			MaxDuplicateScan:        500,
			DedupeThreshold:         0.85,
			TimeoutSeconds:          120,
		},
		EmbedIndex: EmbedIndexConfig{
			TimeoutSeconds: 5,
		},
	}
}

// Load reads a TOML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays environment variables onto the loaded config so
// deployments can avoid editing the file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("SERVER_MODE"); v != "" {
		c.Server.Mode = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("NEO4J_URI"); v != "" {
		c.Neo4j.URI = v
	}
	if v := os.Getenv("NEO4J_USER"); v != "" {
		c.Neo4j.User = v
	}
	if v := os.Getenv("NEO4J_PASSWORD"); v != "" {
		c.Neo4j.Password = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		c.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Reconcile.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("EMBEDINDEX_URL"); v != "" {
		c.EmbedIndex.URL = v
	}
}

// Normalize clamps tunables into their legal ranges and restores defaults
// for zero values.
func (c *Config) Normalize() {
	c.Reconcile.ConfidenceThreshold = clamp01(c.Reconcile.ConfidenceThreshold)
	c.Reconcile.MinExtractionConfidence = clamp01(c.Reconcile.MinExtractionConfidence)
	c.Reconcile.DedupeThreshold = clamp01(c.Reconcile.DedupeThreshold)
	if c.Reconcile.MaxDuplicateScan <= 0 {
		c.Reconcile.MaxDuplicateScan = 500
	}
	if c.Reconcile.TimeoutSeconds <= 0 {
		c.Reconcile.TimeoutSeconds = 120
	}
	if c.EmbedIndex.TimeoutSeconds <= 0 {
		c.EmbedIndex.TimeoutSeconds = 5
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
