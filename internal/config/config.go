// Package config loads application configuration from YAML with environment
// variable overrides.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Vendor   VendorConfig   `yaml:"vendor"`
	AI       AIConfig       `yaml:"ai"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the queue broker connection settings.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// VendorConfig holds the outbound message vendor settings.
type VendorConfig struct {
	Endpoint  string `yaml:"endpoint"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// AIConfig selects and configures the text generation provider.
type AIConfig struct {
	// Provider is "bedrock", "openai" or "none".
	Provider       string `yaml:"provider"`
	BedrockModelID string `yaml:"bedrock_model_id"`
	OpenAIModel    string `yaml:"openai_model"`
	OpenAIEndpoint string `yaml:"openai_endpoint"`
	OpenAIKeyEnv   string `yaml:"openai_key_env"`
}

// WorkerConfig holds dispatch worker settings.
type WorkerConfig struct {
	NumWorkers int `yaml:"num_workers"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file first (if present) so secrets can live in .env
// locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		loaded, err := Load(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if loaded != nil {
			cfg = loaded
		}
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if endpoint := os.Getenv("VENDOR_ENDPOINT"); endpoint != "" {
		cfg.Vendor.Endpoint = endpoint
	}
	if provider := os.Getenv("AI_PROVIDER"); provider != "" {
		cfg.AI.Provider = provider
	}
	if workers := os.Getenv("NUM_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Worker.NumWorkers = n
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// VendorAPIKey resolves the vendor credential from the configured env var.
func (c *Config) VendorAPIKey() string {
	if c.Vendor.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Vendor.APIKeyEnv)
}

// OpenAIAPIKey resolves the OpenAI credential from the configured env var.
func (c *Config) OpenAIAPIKey() string {
	key := c.AI.OpenAIKeyEnv
	if key == "" {
		key = "OPENAI_API_KEY"
	}
	return os.Getenv(key)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "none"
	}
	if c.AI.OpenAIModel == "" {
		c.AI.OpenAIModel = "gpt-4o-mini"
	}
	if c.Worker.NumWorkers == 0 {
		c.Worker.NumWorkers = 4
	}
}
