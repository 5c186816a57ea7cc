// Package config provides the broker's configuration: a single YAML file
// loaded through viper, overridable by environment variables, following
// the load/defaults split the rest of the corpus uses for its services.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the broker's top-level configuration.
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	NATS            NATSConfig            `mapstructure:"nats"`
	Processor       ProcessorConfig       `mapstructure:"processor"`
	CapabilityCache CapabilityCacheConfig `mapstructure:"capability_cache"`
	WebhookCache    WebhookCacheConfig    `mapstructure:"webhook_cache"`
	Cache           CacheConfig           `mapstructure:"cache"`
	Logging         LoggingConfig         `mapstructure:"logging"`
}

// ServerConfig holds the broker's health/metrics HTTP surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig holds Postgres connection settings for the login-record
// datastore.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString renders the pgx connection URL for this config.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// NATSConfig holds the upstream/downstream NATS JetStream connection.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// ProcessorConfig holds the consumer and fan-out tunables.
type ProcessorConfig struct {
	BatchSize      int           `mapstructure:"batch_size"`
	QueueStream    string        `mapstructure:"queue_stream"`
	QueueConsumer  string        `mapstructure:"queue_consumer"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// CapabilityCacheConfig holds the client-capability catalog refresh settings.
type CapabilityCacheConfig struct {
	CatalogURL      string        `mapstructure:"catalog_url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// WebhookCacheConfig holds the client-webhook catalog refresh settings.
type WebhookCacheConfig struct {
	CatalogURL      string        `mapstructure:"catalog_url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// CacheConfig holds settings shared by both self-updating caches.
type CacheConfig struct {
	RedisURL string `mapstructure:"redis_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given YAML file and environment
// variables. path may be empty, in which case only defaults and
// environment overrides apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8091)

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "rp_notify")
	v.SetDefault("database.postgres.user", "rp_notify")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("processor.batch_size", 10)
	v.SetDefault("processor.queue_stream", "AUTH_NOTIFICATIONS")
	v.SetDefault("processor.queue_consumer", "rp-notify-broker")
	v.SetDefault("processor.topic_prefix", "rp.notify.")
	v.SetDefault("processor.publish_timeout", "10s")

	v.SetDefault("capability_cache.refresh_interval", "60s")
	v.SetDefault("webhook_cache.refresh_interval", "60s")

	v.SetDefault("cache.redis_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
