// Package config handles configuration loading for ChainGuard.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config path is given.
const DefaultPath = "configs/config.yaml"

// Config holds the complete application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Simulation SimulationConfig `yaml:"simulation"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Feed       FeedConfig       `yaml:"feed"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort        int             `yaml:"http_port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" validate:"gt=0"`
	CORS            CORSConfig      `yaml:"cors"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" validate:"gte=0"` // Preflight cache duration in seconds
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RequestsPerIP int           `yaml:"requests_per_ip" validate:"required_if=Enabled true,gte=0"`
	WindowSize    time.Duration `yaml:"window_size" validate:"required_if=Enabled true"`
	BurstSize     int           `yaml:"burst_size" validate:"gte=0"`
	CleanupPeriod time.Duration `yaml:"cleanup_period" validate:"required_if=Enabled true"`
	ExemptPaths   []string      `yaml:"exempt_paths"`
	TrustProxy    bool          `yaml:"trust_proxy"` // Trust X-Forwarded-For header
}

// SimulationConfig controls the traffic and block tickers.
type SimulationConfig struct {
	SynthesisInterval time.Duration `yaml:"synthesis_interval" validate:"gt=0"`
	BlockInterval     time.Duration `yaml:"block_interval" validate:"gt=0"`
	RecordLimit       int           `yaml:"record_limit" validate:"min=1"`
	BucketLimit       int           `yaml:"bucket_limit" validate:"min=1"`
	Seed              uint64        `yaml:"seed"` // 0 picks a random seed
	Sources           []string      `yaml:"sources" validate:"omitempty,dive,ip"`
	Destination       string        `yaml:"destination" validate:"ip"`
	StartHeight       uint64        `yaml:"start_height"`
}

// AnalysisConfig holds generation service settings.
type AnalysisConfig struct {
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model" validate:"required"`
	BaseURL   string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
	CacheSize int           `yaml:"cache_size" validate:"gte=0"`
}

// FeedConfig holds Kafka record feed settings.
type FeedConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers" validate:"required_if=Enabled true"`
	Topic        string        `yaml:"topic" validate:"required_if=Enabled true"`
	BufferSize   int           `yaml:"buffer_size" validate:"min=1"`
	BatchSize    int           `yaml:"batch_size" validate:"min=1"`
	BatchTimeout time.Duration `yaml:"batch_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`
	Compression  string        `yaml:"compression" validate:"oneof=none gzip snappy lz4 zstd"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
	// File receives logs in TUI mode; empty discards them.
	File string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second, // analysis calls can take up to analysis.timeout
			ShutdownTimeout: 10 * time.Second,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
				MaxAge:         86400,
			},
			RateLimit: RateLimitConfig{
				Enabled:       true,
				RequestsPerIP: 600,
				WindowSize:    time.Minute,
				BurstSize:     60,
				CleanupPeriod: 5 * time.Minute,
				ExemptPaths:   []string{"/health", "/metrics"},
				TrustProxy:    false,
			},
		},
		Simulation: SimulationConfig{
			SynthesisInterval: 2000 * time.Millisecond,
			BlockInterval:     12000 * time.Millisecond,
			RecordLimit:       50,
			BucketLimit:       20,
			Destination:       "10.0.0.1",
			StartHeight:       18244921,
		},
		Analysis: AnalysisConfig{
			Model:     "gemini-3-flash-preview",
			Timeout:   30 * time.Second,
			CacheSize: 128,
		},
		Feed: FeedConfig{
			Enabled:      false,
			Brokers:      []string{"localhost:9092"},
			Topic:        "chainguard-records",
			BufferSize:   256,
			BatchSize:    50,
			BatchTimeout: 500 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			Compression:  "lz4",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path, falling back to CHAINGUARD_CONFIG_PATH
// and then DefaultPath. A missing default file yields the defaults; a missing
// explicit file is an error. A .env file in the working directory is loaded
// before environment overrides are applied.
func Load(path string) (*Config, error) {
	return load(path, ".env")
}

// ResolvePath returns the config file that Load reads for path and whether
// it was named explicitly rather than falling back to DefaultPath.
func ResolvePath(path string) (string, bool) {
	if path == "" {
		path = os.Getenv("CHAINGUARD_CONFIG_PATH")
	}
	if path == "" {
		return DefaultPath, false
	}
	return path, true
}

func load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	path, explicit := ResolvePath(path)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// No file, keep defaults
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if port := os.Getenv("CHAINGUARD_HTTP_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid CHAINGUARD_HTTP_PORT %q: %w", port, err)
		}
		c.Server.HTTPPort = n
	}

	if level := os.Getenv("CHAINGUARD_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}

	if format := os.Getenv("CHAINGUARD_LOG_FORMAT"); format != "" {
		c.Logging.Format = strings.ToLower(format)
	}

	if seed := os.Getenv("CHAINGUARD_SEED"); seed != "" {
		n, err := strconv.ParseUint(seed, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid CHAINGUARD_SEED %q: %w", seed, err)
		}
		c.Simulation.Seed = n
	}

	// API_KEY wins over GEMINI_API_KEY.
	if key := os.Getenv("API_KEY"); key != "" {
		c.Analysis.APIKey = key
	} else if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Analysis.APIKey = key
	}

	if brokers := os.Getenv("CHAINGUARD_FEED_BROKERS"); brokers != "" {
		c.Feed.Brokers = splitAndTrim(brokers, ",")
		c.Feed.Enabled = len(c.Feed.Brokers) > 0
	}

	if origins := os.Getenv("CHAINGUARD_CORS_ORIGINS"); origins != "" {
		c.Server.CORS.AllowedOrigins = splitAndTrim(origins, ",")
	}

	if enabled := os.Getenv("CHAINGUARD_RATELIMIT_ENABLED"); enabled == "false" {
		c.Server.RateLimit.Enabled = false
	}

	return nil
}

// splitAndTrim splits s by sep and drops empty parts.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
