package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment string `toml:"environment"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// postgres
	PostgresHost     string `toml:"postgres_host"`
	PostgresPort     string `toml:"postgres_port"`
	PostgresDBName   string `toml:"postgres_db_name"`
	PostgresUser     string `toml:"postgres_user"`
	PostgresMaxConns int    `toml:"postgres_max_conns"`

	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// prometheus
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// performance submissions rate limit (per client, per minute)
	SubmitRateLimitPerMin int `toml:"submit_rate_limit_per_min"`

	// ranking engine
	Engine EngineConfig `toml:"engine"`
}

// EngineConfig holds the raw, file-level knobs of the update engine.
// It is converted to a validated ranking.Config in the composition root.
type EngineConfig struct {
	BatchSize                 int    `toml:"batch_size"`
	MaxUpdateFrequencyMinutes int    `toml:"max_update_frequency_minutes"`
	StatsIntervalSeconds      int    `toml:"stats_interval_seconds"`
	PriorityThreshold         string `toml:"priority_threshold"`
	MaxQueueSize              int    `toml:"max_queue_size"`
	EnableSmartBatching       bool   `toml:"enable_smart_batching"`
	MaxSegmentsPerUpdate      int    `toml:"max_segments_per_update"`
	PercentileCacheTTLSeconds int    `toml:"percentile_cache_ttl_seconds"`
	PercentileCacheSizeBytes  int    `toml:"percentile_cache_size_bytes"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var tomlConfig Toml
	if _, err := toml.DecodeFile(path, &tomlConfig); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	cfg, err := tomlConfig.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config for env [%s] is empty", env)
	}

	cfg.Environment = env
	return cfg, nil
}
