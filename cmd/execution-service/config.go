package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/suchitj2702/algo-irl/internal/common/cache"
	"github.com/suchitj2702/algo-irl/internal/common/db"
	"github.com/suchitj2702/algo-irl/internal/common/mq"
	"github.com/suchitj2702/algo-irl/internal/common/storage"
	"github.com/suchitj2702/algo-irl/internal/execution/judge0"
	"github.com/suchitj2702/algo-irl/internal/execution/model"
	"github.com/suchitj2702/algo-irl/internal/execution/reconciler"
	"github.com/suchitj2702/algo-irl/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8086"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultStatusTTL       = 10 * time.Minute
	defaultCompletionTopic = "execution.completed"
	defaultSnapshotBucket  = "execution-snapshots"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka producer settings for completion events.
type KafkaConfig struct {
	Brokers         []string      `yaml:"brokers"`
	ClientID        string        `yaml:"clientID"`
	RequiredAcks    int           `yaml:"requiredAcks"`
	Compression     string        `yaml:"compression"`
	BatchSize       int           `yaml:"batchSize"`
	BatchTimeout    time.Duration `yaml:"batchTimeout"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	CompletionTopic string        `yaml:"completionTopic"`
}

// CallbackConfig holds judge push-callback settings.
type CallbackConfig struct {
	// BaseURL is this service's externally reachable address. Empty
	// disables callbacks and leaves polling as the only completion path.
	BaseURL       string        `yaml:"baseURL"`
	SigningSecret string        `yaml:"signingSecret"`
	TokenTTL      time.Duration `yaml:"tokenTTL"`
}

// StatusConfig holds status snapshot cache settings.
type StatusConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// PollConfig holds the completion poll schedule.
type PollConfig struct {
	MaxWait  time.Duration `yaml:"maxWait"`
	Interval time.Duration `yaml:"interval"`
}

// SandboxConfig holds local sandbox settings.
type SandboxConfig struct {
	WorkRoot          string `yaml:"workRoot"`
	HelperPath        string `yaml:"helperPath"`
	SeccompProfile    string `yaml:"seccompProfile"`
	EnableNamespaces  bool   `yaml:"enableNamespaces"`
	MaxConcurrentRuns int    `yaml:"maxConcurrentRuns"`
}

// ArchiveConfig holds submission snapshot archival settings.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
}

// AppConfig holds execution-service config.
type AppConfig struct {
	Server   ServerConfig         `yaml:"server"`
	Logger   logger.Config        `yaml:"logger"`
	Database db.MySQLConfig       `yaml:"database"`
	Redis    cache.RedisConfig    `yaml:"redis"`
	MinIO    storage.MinIOConfig  `yaml:"minio"`
	Kafka    KafkaConfig          `yaml:"kafka"`
	Judge    judge0.Config        `yaml:"judge"`
	Limits   model.ResourceLimits `yaml:"limits"`
	Callback CallbackConfig       `yaml:"callback"`
	Status   StatusConfig         `yaml:"status"`
	Poll     PollConfig           `yaml:"poll"`
	Sandbox  SandboxConfig        `yaml:"sandbox"`
	Archive  ArchiveConfig        `yaml:"archive"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Judge.URL == "" {
		return nil, fmt.Errorf("judge url is required")
	}
	if cfg.Callback.BaseURL != "" && cfg.Callback.SigningSecret == "" {
		return nil, fmt.Errorf("callback signing secret is required when callback baseURL is set")
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Status.TTL == 0 {
		cfg.Status.TTL = defaultStatusTTL
	}
	if cfg.Kafka.CompletionTopic == "" {
		cfg.Kafka.CompletionTopic = defaultCompletionTopic
	}
	if cfg.Archive.Bucket == "" {
		cfg.Archive.Bucket = defaultSnapshotBucket
	}
	cfg.Limits = cfg.Limits.Normalize()
	return &cfg, nil
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	cfg := mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		ReadTimeout:  k.ReadTimeout,
		WriteTimeout: k.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
	}
	cfg.Compression = parseCompression(k.Compression)
	return cfg
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

func (p PollConfig) toPolicy() reconciler.Policy {
	policy := reconciler.DefaultPolicy()
	if p.MaxWait > 0 {
		policy.MaxWait = p.MaxWait
	}
	if p.Interval > 0 {
		policy.Interval = p.Interval
	}
	return policy
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}
