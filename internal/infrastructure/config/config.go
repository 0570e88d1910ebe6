package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Relay         RelayConfig         `mapstructure:"relay"`
	Saga          SagaConfig          `mapstructure:"saga"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MinBytes     int           `mapstructure:"min_bytes"`
	MaxBytes     int           `mapstructure:"max_bytes"`
}

// RelayConfig tunes the outbox relay loop.
type RelayConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxRetries   int           `mapstructure:"max_retries"`
	// StaleAfter is how long a processing claim may live before another
	// worker reclaims it.
	StaleAfter              time.Duration `mapstructure:"stale_after"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

// SagaConfig tunes the order saga coordinator and its reconciliation sweep.
type SagaConfig struct {
	ConsumerGroup string `mapstructure:"consumer_group"`
	// PendingTimeout is how long an order may stay pending before the
	// sweeper force-fails it.
	PendingTimeout time.Duration `mapstructure:"pending_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize int           `mapstructure:"sweep_batch_size"`
}

// QueueConfig tunes the coupon admission queue drain scheduler.
type QueueConfig struct {
	DrainInterval  time.Duration `mapstructure:"drain_interval"`
	DrainBatchSize int           `mapstructure:"drain_batch_size"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("COMMERCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/commerce")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, fmt.Errorf("kafka.brokers is required"))
	}
	if c.Relay.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("relay.poll_interval must be positive"))
	}
	if c.Relay.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("relay.batch_size must be positive"))
	}
	if c.Relay.StaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("relay.stale_after must be positive"))
	}
	if c.Saga.PendingTimeout <= 0 {
		errs = append(errs, fmt.Errorf("saga.pending_timeout must be positive"))
	}
	if c.Queue.DrainInterval <= 0 {
		errs = append(errs, fmt.Errorf("queue.drain_interval must be positive"))
	}
	if c.Queue.DrainBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("queue.drain_batch_size must be positive"))
	}
	if c.Queue.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("queue.lock_ttl must be positive"))
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "commerce")
	v.SetDefault("database.database", "commerce")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.write_timeout", "10s")
	v.SetDefault("kafka.min_bytes", 1)
	v.SetDefault("kafka.max_bytes", 10e6)

	// Relay defaults
	v.SetDefault("relay.poll_interval", "2s")
	v.SetDefault("relay.batch_size", 50)
	v.SetDefault("relay.max_retries", 3)
	v.SetDefault("relay.stale_after", "2m")
	v.SetDefault("relay.circuit_breaker_threshold", 10)
	v.SetDefault("relay.circuit_breaker_timeout", "30s")

	// Saga defaults
	v.SetDefault("saga.consumer_group", "order-saga")
	v.SetDefault("saga.pending_timeout", "10m")
	v.SetDefault("saga.sweep_interval", "1m")
	v.SetDefault("saga.sweep_batch_size", 50)

	// Queue defaults
	v.SetDefault("queue.drain_interval", "1s")
	v.SetDefault("queue.drain_batch_size", 100)
	v.SetDefault("queue.lock_ttl", "30s")
	v.SetDefault("queue.idempotency_ttl", "24h")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", "commerce-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
