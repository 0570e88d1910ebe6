package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
		},
		Relay: RelayConfig{
			PollInterval: 2 * time.Second,
			BatchSize:    50,
			MaxRetries:   3,
			StaleAfter:   2 * time.Minute,
		},
		Saga: SagaConfig{
			ConsumerGroup:  "order-saga",
			PendingTimeout: 10 * time.Minute,
			SweepInterval:  time.Minute,
			SweepBatchSize: 50,
		},
		Queue: QueueConfig{
			DrainInterval:  time.Second,
			DrainBatchSize: 100,
			LockTTL:        30 * time.Second,
			IdempotencyTTL: 24 * time.Hour,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	err := validConfig().Validate()
	assert.NoError(t, err)
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_InvalidTimeouts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ReadTimeout = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read_timeout")

	cfg = validConfig()
	cfg.Server.WriteTimeout = 0

	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "write_timeout")
}

func TestConfig_Validate_MissingDatabaseHost(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database.host")
}

func TestConfig_Validate_InvalidRedisPort(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Port = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis.port")
}

func TestConfig_Validate_MissingKafkaBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Brokers = nil

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.brokers")
}

func TestConfig_Validate_InvalidRelaySettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"zero poll interval", func(c *Config) { c.Relay.PollInterval = 0 }, "relay.poll_interval"},
		{"zero batch size", func(c *Config) { c.Relay.BatchSize = 0 }, "relay.batch_size"},
		{"zero stale after", func(c *Config) { c.Relay.StaleAfter = 0 }, "relay.stale_after"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestConfig_Validate_InvalidSagaPendingTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Saga.PendingTimeout = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "saga.pending_timeout")
}

func TestConfig_Validate_InvalidQueueSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"zero drain interval", func(c *Config) { c.Queue.DrainInterval = 0 }, "queue.drain_interval"},
		{"zero drain batch size", func(c *Config) { c.Queue.DrainBatchSize = 0 }, "queue.drain_batch_size"},
		{"zero lock ttl", func(c *Config) { c.Queue.LockTTL = 0 }, "queue.lock_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Database.Host = ""
	cfg.Kafka.Brokers = nil

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "database.host")
	assert.Contains(t, err.Error(), "kafka.brokers")
}

func TestDatabaseConfig_DatabaseDSN(t *testing.T) {
	cfg := validConfig()
	dsn := cfg.Database.DatabaseDSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "dbname=test_db")
}

func TestRedisConfig_RedisAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "localhost:6379", cfg.Redis.RedisAddr())
}
