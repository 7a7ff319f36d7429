package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers
const (
	StorageMemory   = "memory"
	StorageMySQL    = "mysql"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Relay    RelayConfig    `mapstructure:"relay"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// StorageConfig picks the ledger backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// MySQLConfig is used when storage.driver is mysql.
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// PostgresConfig is used when storage.driver is postgres.
type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// RedisConfig is used when storage.driver is redis.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig enables history events on topic.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LedgerConfig holds the balance rules.
type LedgerConfig struct {
	// Charge creates a missing account instead of failing with not found.
	AutoCreateAccounts bool  `mapstructure:"auto_create_accounts"`
	MaxBalance         int64 `mapstructure:"max_balance"`
	WorkerID           int64 `mapstructure:"worker_id"`
}

// RelayConfig tunes the history event relay.
type RelayConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	MaxRetryCount int           `mapstructure:"max_retry_count"`
	BufferSize    int           `mapstructure:"buffer_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("storage.driver", StorageMemory)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.database", "point")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)

	v.SetDefault("postgres.host", "127.0.0.1")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.database", "point")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 50)
	v.SetDefault("postgres.max_idle_conns", 10)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic", "point-history")

	v.SetDefault("ledger.auto_create_accounts", false)
	v.SetDefault("ledger.max_balance", int64(math.MaxInt64))
	v.SetDefault("ledger.worker_id", 1)

	v.SetDefault("relay.interval", 100*time.Millisecond)
	v.SetDefault("relay.batch_size", 100)
	v.SetDefault("relay.max_retry_count", 3)
	v.SetDefault("relay.buffer_size", 4096)
}

// Load reads configPath (yaml) on top of defaults.
// A missing file is not an error: defaults and POINT_* environment variables still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("POINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: stat %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageMySQL, StoragePostgres, StorageRedis:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Ledger.MaxBalance < 0 {
		return fmt.Errorf("config: ledger.max_balance must not be negative, got %d", c.Ledger.MaxBalance)
	}
	if c.Ledger.WorkerID < 0 || c.Ledger.WorkerID > 1023 {
		return fmt.Errorf("config: ledger.worker_id must be in [0, 1023], got %d", c.Ledger.WorkerID)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("config: kafka.enabled requires at least one broker")
	}
	return nil
}

func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
