package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the ragline configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings for serve mode.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector store settings.
type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // postgres, memory (default: postgres)
	DSN        string `yaml:"dsn"`
	Dimensions int    `yaml:"dimensions"`
}

// CacheConfig holds the optional Redis embedding cache settings.
type CacheConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	TTLHours int      `yaml:"ttl_hours"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider    string         `yaml:"provider"` // openai, huggingface
	OpenAI      ProviderConfig `yaml:"openai"`
	HuggingFace ProviderConfig `yaml:"huggingface"`
}

// GenerationConfig selects and configures the generation provider.
type GenerationConfig struct {
	Provider    string         `yaml:"provider"` // openai, huggingface
	OpenAI      ProviderConfig `yaml:"openai"`
	HuggingFace ProviderConfig `yaml:"huggingface"`
}

// ProviderConfig holds one provider's credentials and model selection.
type ProviderConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// ChunkingConfig holds chunking strategy settings.
type ChunkingConfig struct {
	Strategy      string `yaml:"strategy"` // character, token
	CharSize      int    `yaml:"char_size"`
	CharOverlap   int    `yaml:"char_overlap"`
	TokenSize     int    `yaml:"token_size"`
	TokenOverlap  int    `yaml:"token_overlap"`
	TokenEncoding string `yaml:"token_encoding"`
}

// RetrievalConfig holds query-time settings.
type RetrievalConfig struct {
	TopK            int  `yaml:"top_k"`
	FailFast        bool `yaml:"fail_fast"`
	MaxContextChars int  `yaml:"max_context_chars"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.Dimensions <= 0 {
		c.Database.Dimensions = 768
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = 24 * 7
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.OpenAI.Model == "" {
		c.Embedding.OpenAI.Model = "text-embedding-3-small"
	}
	if c.Embedding.OpenAI.Dimensions <= 0 {
		c.Embedding.OpenAI.Dimensions = c.Database.Dimensions
	}
	if c.Embedding.HuggingFace.Model == "" {
		c.Embedding.HuggingFace.Model = "google/embeddinggemma-300m"
	}
	if c.Embedding.HuggingFace.Dimensions <= 0 {
		c.Embedding.HuggingFace.Dimensions = c.Database.Dimensions
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = "openai"
	}
	if c.Generation.OpenAI.Model == "" {
		c.Generation.OpenAI.Model = "gpt-4.1-mini"
	}
	if c.Generation.HuggingFace.Model == "" {
		c.Generation.HuggingFace.Model = "google/gemma-3-1b-it"
	}
	if c.Chunking.Strategy == "" {
		c.Chunking.Strategy = "character"
	}
	if c.Chunking.CharSize <= 0 {
		c.Chunking.CharSize = 1000
	}
	if c.Chunking.CharOverlap <= 0 {
		c.Chunking.CharOverlap = 100
	}
	if c.Chunking.TokenSize <= 0 {
		c.Chunking.TokenSize = 250
	}
	if c.Chunking.TokenOverlap <= 0 {
		c.Chunking.TokenOverlap = 50
	}
	if c.Chunking.TokenEncoding == "" {
		c.Chunking.TokenEncoding = "o200k_base"
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 3
	}
	if c.Retrieval.MaxContextChars <= 0 {
		c.Retrieval.MaxContextChars = 8000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case "memory":
		// no settings
	default:
		return fmt.Errorf("database.driver must be postgres or memory, got %q", c.Database.Driver)
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache.enabled is true")
	}
	switch c.Embedding.Provider {
	case "openai", "huggingface":
	default:
		return fmt.Errorf("embedding.provider must be openai or huggingface, got %q", c.Embedding.Provider)
	}
	switch c.Generation.Provider {
	case "openai", "huggingface":
	default:
		return fmt.Errorf("generation.provider must be openai or huggingface, got %q", c.Generation.Provider)
	}
	switch c.Chunking.Strategy {
	case "character", "token":
	default:
		return fmt.Errorf("chunking.strategy must be character or token, got %q", c.Chunking.Strategy)
	}
	if c.Chunking.CharOverlap >= c.Chunking.CharSize {
		return fmt.Errorf("chunking.char_overlap (%d) must be smaller than chunking.char_size (%d)",
			c.Chunking.CharOverlap, c.Chunking.CharSize)
	}
	if c.Chunking.TokenOverlap >= c.Chunking.TokenSize {
		return fmt.Errorf("chunking.token_overlap (%d) must be smaller than chunking.token_size (%d)",
			c.Chunking.TokenOverlap, c.Chunking.TokenSize)
	}
	return nil
}

// EmbeddingProvider returns the active embedding provider settings.
func (c *Config) EmbeddingProvider() ProviderConfig {
	if c.Embedding.Provider == "huggingface" {
		return c.Embedding.HuggingFace
	}
	return c.Embedding.OpenAI
}

// GenerationProvider returns the active generation provider settings.
func (c *Config) GenerationProvider() ProviderConfig {
	if c.Generation.Provider == "huggingface" {
		return c.Generation.HuggingFace
	}
	return c.Generation.OpenAI
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
