package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Schemas   SchemasConfig   `yaml:"schemas" mapstructure:"schemas"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key                 string `yaml:"key" mapstructure:"key"`
	VisionModel         string `yaml:"vision_model" mapstructure:"vision_model"`
	MaxBatchSize        int    `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	NoBatch             bool   `yaml:"no_batch" mapstructure:"no_batch"`
	SmallBatchThreshold int    `yaml:"small_batch_threshold" mapstructure:"small_batch_threshold"`
}

// ExtractConfig configures frame attribute extraction.
type ExtractConfig struct {
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Retries       int     `yaml:"retries" mapstructure:"retries"`
	Version       string  `yaml:"version" mapstructure:"version"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// CatalogConfig configures listing feed imports.
type CatalogConfig struct {
	// FeedConfidence is the confidence assigned to attribute values taken
	// directly from a merchant feed (0-100).
	FeedConfidence float64 `yaml:"feed_confidence" mapstructure:"feed_confidence"`
	FTPTimeoutSecs int     `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
	FTPRetries     int     `yaml:"ftp_retries" mapstructure:"ftp_retries"`
}

// SchemasConfig configures category schema loading.
type SchemasConfig struct {
	// Dir holds user-supplied schema YAML files. Empty means built-ins only.
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// PricingConfig holds per-model token pricing overrides.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	BatchDiscount float64 `yaml:"batch_discount" mapstructure:"batch_discount"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the configuration is usable for the given mode.
// Modes: "match" (full pipeline), "serve" (HTTP API), "catalog" (feed import),
// "local" (schema/run inspection, no API key needed).
func (c *Config) Validate(mode string) error {
	var missing []string

	switch mode {
	case "match":
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	case "serve":
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	case "catalog", "local":
		// No credentials needed.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Extract.Concurrency < 1 || c.Extract.Concurrency > 64 {
		missing = append(missing, "extract.concurrency must be between 1 and 64")
	}
	if c.Extract.RatePerSecond <= 0 {
		missing = append(missing, "extract.rate_per_second must be > 0")
	}
	if c.Catalog.FeedConfidence < 0 || c.Catalog.FeedConfidence > 100 {
		missing = append(missing, "catalog.feed_confidence must be between 0 and 100")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "match.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.vision_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_batch_size", 100)
	v.SetDefault("anthropic.small_batch_threshold", 5)
	v.SetDefault("extract.concurrency", 8)
	v.SetDefault("extract.rate_per_second", 4.0)
	v.SetDefault("extract.retries", 3)
	v.SetDefault("extract.version", "v1.0")
	v.SetDefault("extract.cache_ttl_hours", 168)
	v.SetDefault("catalog.feed_confidence", 90.0)
	v.SetDefault("catalog.ftp_timeout_secs", 30)
	v.SetDefault("catalog.ftp_retries", 3)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
