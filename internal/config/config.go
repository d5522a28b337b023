package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Embedding EmbeddingConfig `json:"embedding"`
	Matching  MatchingConfig  `json:"matching"`
	Storage   StorageConfig   `json:"storage"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type EmbeddingConfig struct {
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// StorageConfig locates uploaded item images on disk.
type StorageConfig struct {
	ImagesDir string `json:"images_dir"`
}

// MatchingConfig tunes similarity scoring. Weights apply to the
// text/image fusion; threshold and max results are defaults that
// callers can override per request.
type MatchingConfig struct {
	TextWeight       float64 `json:"text_weight"`
	ImageWeight      float64 `json:"image_weight"`
	Threshold        float64 `json:"threshold"`
	MaxResults       int     `json:"max_results"`
	EmbeddingVersion string  `json:"embedding_version"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Matching.TextWeight == 0 && c.Matching.ImageWeight == 0 {
		c.Matching.TextWeight = 0.4
		c.Matching.ImageWeight = 0.6
	}
	if c.Matching.Threshold == 0 {
		c.Matching.Threshold = 0.7
	}
	if c.Matching.MaxResults == 0 {
		c.Matching.MaxResults = 10
	}
	if c.Matching.EmbeddingVersion == "" {
		c.Matching.EmbeddingVersion = "1.0"
	}
	if c.Storage.ImagesDir == "" {
		c.Storage.ImagesDir = "data/images"
	}
}
