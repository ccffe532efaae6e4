// Package config loads firmcrawl settings from config.yaml, FIRMCRAWL_*
// environment variables and built-in defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Crawl      CrawlConfig      `yaml:"crawl" mapstructure:"crawl"`
	SFC        SFCConfig        `yaml:"sfc" mapstructure:"sfc"`
	Webb       WebbConfig       `yaml:"webb" mapstructure:"webb"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FetchConfig configures outbound HTTP.
type FetchConfig struct {
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries   int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	DetectBlocks bool    `yaml:"detect_blocks" mapstructure:"detect_blocks"`
}

// CrawlConfig bounds request parallelism.
type CrawlConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// SFCConfig configures the registry spider.
type SFCConfig struct {
	BaseURL              string   `yaml:"base_url" mapstructure:"base_url"`
	Partitions           []string `yaml:"partitions" mapstructure:"partitions"`
	RAType               int      `yaml:"ratype" mapstructure:"ratype"`
	PageSize             int      `yaml:"page_size" mapstructure:"page_size"`
	PartitionConcurrency int      `yaml:"partition_concurrency" mapstructure:"partition_concurrency"`
	// FacetsFile replaces the built-in facet table when set.
	FacetsFile string `yaml:"facets_file" mapstructure:"facets_file"`
}

// WebbConfig configures the Webb-site spider.
type WebbConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	RAType         int    `yaml:"ratype" mapstructure:"ratype"`
	IncludeHistory bool   `yaml:"include_history" mapstructure:"include_history"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures run-health alerting.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func defaultPartitions() []string {
	out := make([]string, 0, 26)
	for c := 'A'; c <= 'Z'; c++ {
		out = append(out, string(c))
	}
	return out
}

// Load reads configuration from config.yaml (optional), FIRMCRAWL_* env
// vars, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FIRMCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetch.user_agent", "firmcrawl/1.0 (+https://github.com/sells-group/firmcrawl)")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_sec", 5)
	v.SetDefault("fetch.detect_blocks", true)
	v.SetDefault("crawl.max_concurrency", 8)
	v.SetDefault("sfc.base_url", "https://apps.sfc.hk/publicregWeb")
	v.SetDefault("sfc.partitions", defaultPartitions())
	v.SetDefault("sfc.ratype", 6)
	v.SetDefault("sfc.page_size", 200)
	v.SetDefault("sfc.partition_concurrency", 4)
	v.SetDefault("sfc.facets_file", "")
	v.SetDefault("webb.base_url", "https://webb-site.com/dbpub")
	v.SetDefault("webb.ratype", 6)
	v.SetDefault("webb.include_history", false)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_window_hours", 168)
	v.SetDefault("monitoring.check_interval_secs", 300)

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

// Validate checks the settings a command needs. mode is one of crawl,
// serve, migrate or read.
func (c *Config) Validate(mode string) error {
	var errs []string

	needsStore := false
	switch mode {
	case "crawl":
		needsStore = true
		if c.Crawl.MaxConcurrency < 1 || c.Crawl.MaxConcurrency > 64 {
			errs = append(errs, "crawl.max_concurrency must be between 1 and 64")
		}
		if c.SFC.PartitionConcurrency < 1 || c.SFC.PartitionConcurrency > 26 {
			errs = append(errs, "sfc.partition_concurrency must be between 1 and 26")
		}
		if c.SFC.PageSize < 1 {
			errs = append(errs, "sfc.page_size must be > 0")
		}
		if len(c.SFC.Partitions) == 0 {
			errs = append(errs, "sfc.partitions must not be empty")
		}
		if c.Fetch.RatePerSec <= 0 {
			errs = append(errs, "fetch.rate_per_sec must be > 0")
		}
	case "serve":
		needsStore = true
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Monitoring.Enabled {
			if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
				errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
			}
			if c.Monitoring.LookbackWindowHours < 1 {
				errs = append(errs, "monitoring.lookback_window_hours must be > 0")
			}
		}
	case "migrate", "read":
		needsStore = true
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needsStore {
		switch c.Store.Driver {
		case "postgres", "":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q is not supported (postgres, sqlite)", c.Store.Driver))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
