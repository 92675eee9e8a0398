package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Access     AccessConfig     `mapstructure:"access"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Store      StoreConfig      `mapstructure:"store"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Tasks      TasksConfig      `mapstructure:"tasks"`
	DLQ        DLQConfig        `mapstructure:"dlq"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type AccessConfig struct {
	Owner        string `mapstructure:"owner"`
	Repositories string `mapstructure:"repositories"`
	Match        string `mapstructure:"match"`
	Strict       bool   `mapstructure:"strict"`
}

// RepositoryList splits the comma-separated repository setting.
func (a AccessConfig) RepositoryList() []string {
	if a.Repositories == "" {
		return nil
	}
	parts := strings.Split(a.Repositories, ",")
	repos := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			repos = append(repos, p)
		}
	}
	return repos
}

type EnrichmentConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Mode    string        `mapstructure:"mode"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StoreConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Backend         string        `mapstructure:"backend"`
	RedisURL        string        `mapstructure:"redis_url"`
	BurstLimit      int           `mapstructure:"burst_limit"`
	BurstWindow     time.Duration `mapstructure:"burst_window"`
	SustainedLimit  int           `mapstructure:"sustained_limit"`
	SustainedWindow time.Duration `mapstructure:"sustained_window"`
}

type PipelineConfig struct {
	AcceptedRecord bool `mapstructure:"accepted_record"`
}

type TasksConfig struct {
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

type DLQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Backend  string `mapstructure:"backend"`
	BasePath string `mapstructure:"base_path"`
	NatsURL  string `mapstructure:"nats_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("access.owner", "")
	v.SetDefault("access.repositories", "")
	v.SetDefault("access.match", "bare")
	v.SetDefault("access.strict", false)
	v.SetDefault("enrichment.api_key", "")
	v.SetDefault("enrichment.model", "gemini-2.0-flash")
	v.SetDefault("enrichment.base_url", "")
	v.SetDefault("enrichment.mode", "inline")
	v.SetDefault("enrichment.timeout", "30s")
	v.SetDefault("store.url", "")
	v.SetDefault("store.token", "")
	v.SetDefault("store.api_key", "")
	v.SetDefault("store.timeout", "10s")
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.redis_url", "redis://localhost:6379")
	v.SetDefault("ratelimit.burst_limit", 3)
	v.SetDefault("ratelimit.burst_window", "10s")
	v.SetDefault("ratelimit.sustained_limit", 100)
	v.SetDefault("ratelimit.sustained_window", "10m")
	v.SetDefault("pipeline.accepted_record", true)
	v.SetDefault("tasks.workers", 4)
	v.SetDefault("tasks.queue_size", 256)
	v.SetDefault("tasks.task_timeout", "60s")
	v.SetDefault("dlq.enabled", false)
	v.SetDefault("dlq.backend", "file")
	v.SetDefault("dlq.base_path", "./dlq")
	v.SetDefault("dlq.nats_url", "nats://localhost:4222")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/newsnotify")
	}

	// Environment variables override (NOTIFY_SERVER_PORT, NOTIFY_STORE_TOKEN, ...)
	v.SetEnvPrefix("NOTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
