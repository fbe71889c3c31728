package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Rotation  RotationConfig  `mapstructure:"rotation"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type WebhookConfig struct {
	MaxBodySize         int64         `mapstructure:"max_body_size"`
	TimestampMaxAge     time.Duration `mapstructure:"timestamp_max_age"`
	ClockSkewAllowance  time.Duration `mapstructure:"clock_skew_allowance"`
	ReplaySweepInterval time.Duration `mapstructure:"replay_sweep_interval"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type SecretsConfig struct {
	Provider     string                       `mapstructure:"provider"`
	CacheTTL     time.Duration                `mapstructure:"cache_ttl"`
	FetchTimeout time.Duration                `mapstructure:"fetch_timeout"`
	Bundles      map[string]string            `mapstructure:"bundles"`
	AWS          AWSSecretsConfig             `mapstructure:"aws"`
	Static       map[string]map[string]string `mapstructure:"static"`
}

type AWSSecretsConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type RotationConfig struct {
	PolicyFile       string        `mapstructure:"policy_file"`
	DedupeWindow     time.Duration `mapstructure:"dedupe_window"`
	RequireSignature bool          `mapstructure:"require_signature"`
	Bridge           BridgeConfig  `mapstructure:"bridge"`
}

type BridgeConfig struct {
	ConfigTemplate string        `mapstructure:"config_template"`
	ConfigPath     string        `mapstructure:"config_path"`
	RestartCommand []string      `mapstructure:"restart_command"`
	EchoURL        string        `mapstructure:"echo_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type DispatchConfig struct {
	NatsURL        string        `mapstructure:"nats_url"`
	Subject        string        `mapstructure:"subject"`
	QueueSize      int           `mapstructure:"queue_size"`
	Workers        int           `mapstructure:"workers"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type AuditConfig struct {
	Backend         string           `mapstructure:"backend"`
	BufferSize      int              `mapstructure:"buffer_size"`
	Environment     string           `mapstructure:"environment"`
	SensitiveFields []string         `mapstructure:"sensitive_fields"`
	Nats            AuditNatsConfig  `mapstructure:"nats"`
	Postgres        PostgresConfig   `mapstructure:"postgres"`
	OpenSearch      OpenSearchConfig `mapstructure:"opensearch"`
}

type AuditNatsConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type OpenSearchConfig struct {
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
	IndexPrefix   string `mapstructure:"index_prefix"`
}

type AdminConfig struct {
	APIKeyHash string `mapstructure:"api_key_hash"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8095)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("webhook.max_body_size", 1048576)
	v.SetDefault("webhook.timestamp_max_age", "300s")
	v.SetDefault("webhook.clock_skew_allowance", "30s")
	v.SetDefault("webhook.replay_sweep_interval", "1m")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379")
	v.SetDefault("secrets.provider", "aws")
	v.SetDefault("secrets.cache_ttl", "5m")
	v.SetDefault("secrets.fetch_timeout", "10s")
	v.SetDefault("secrets.bundles", map[string]string{
		"pacs":        "pacsgate/pacs",
		"webhook":     "pacsgate/webhook",
		"datastore":   "pacsgate/datastore",
		"objectstore": "pacsgate/objectstore",
	})
	v.SetDefault("secrets.aws.region", "us-east-1")
	v.SetDefault("rotation.dedupe_window", "10m")
	v.SetDefault("rotation.require_signature", true)
	v.SetDefault("rotation.bridge.timeout", "30s")
	v.SetDefault("dispatch.nats_url", "nats://localhost:4222")
	v.SetDefault("dispatch.subject", "pacs.instance.new")
	v.SetDefault("dispatch.queue_size", 1024)
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.publish_timeout", "5s")
	v.SetDefault("audit.backend", "stdout")
	v.SetDefault("audit.buffer_size", 1024)
	v.SetDefault("audit.environment", "production")
	v.SetDefault("audit.sensitive_fields", []string{"authorization", "cookie", "x-api-key"})
	v.SetDefault("audit.nats.subject", "pacsgate.audit")
	v.SetDefault("audit.opensearch.index_prefix", "pacsgate")
	v.SetDefault("audit.opensearch.tls_skip_verify", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pacsgate")
	}

	// Environment variables override
	v.SetEnvPrefix("PACSGATE")
	v.AutomaticEnv()

	// Read config
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
