package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Repository backends
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Alert sinks
const (
	SinkLog   = "log"
	SinkKafka = "kafka"
)

// Config holds runtime configuration for the monitor.
type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string

	Repository RepositoryConfig
	Redis      RedisConfig
	Kafka      KafkaConfig

	// AlertSinks lists where alerts are delivered (log, kafka)
	AlertSinks []string

	// Reading pipeline
	Workers   int
	QueueSize int
}

// RepositoryConfig selects and configures the patient store.
type RepositoryConfig struct {
	Backend      string
	PatientsFile string
	DatabaseURL  string
}

// RedisConfig configures the optional patient cache. Empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// KafkaConfig configures alert publishing and reading intake.
type KafkaConfig struct {
	Brokers       []string
	AlertTopic    string
	ReadingsTopic string
	GroupID       string
	Producer      ProducerConfig
}

// ProducerConfig holds kafka writer tunables.
type ProducerConfig struct {
	PoolSize     int
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	RequiredAcks int
	Compression  string
	MaxRetries   int
	RetryBackoff time.Duration
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		Env:      "development",
		LogLevel: "info",
		HTTPAddr: ":8080",
		Repository: RepositoryConfig{
			Backend:      BackendMemory,
			PatientsFile: "patients.jsonl",
		},
		Redis: RedisConfig{
			TTL: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			AlertTopic:    "patient-alerts",
			ReadingsTopic: "patient-readings",
			GroupID:       "patientmon",
			Producer: ProducerConfig{
				PoolSize:     2,
				BatchSize:    1,
				BatchTimeout: 10 * time.Millisecond,
				WriteTimeout: 10 * time.Second,
				RequiredAcks: -1,
				Compression:  "none",
				MaxRetries:   3,
				RetryBackoff: 100 * time.Millisecond,
			},
		},
		AlertSinks: []string{SinkLog},
		Workers:    4,
		QueueSize:  1000,
	}
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	d := Default()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("ENV", d.Env)
	v.SetDefault("LOG_LEVEL", d.LogLevel)
	v.SetDefault("HTTP_ADDR", d.HTTPAddr)
	v.SetDefault("REPOSITORY_BACKEND", d.Repository.Backend)
	v.SetDefault("PATIENTS_FILE", d.Repository.PatientsFile)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", d.Redis.TTL)
	v.SetDefault("ALERT_SINKS", strings.Join(d.AlertSinks, ","))
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_ALERT_TOPIC", d.Kafka.AlertTopic)
	v.SetDefault("KAFKA_READINGS_TOPIC", d.Kafka.ReadingsTopic)
	v.SetDefault("KAFKA_GROUP_ID", d.Kafka.GroupID)
	v.SetDefault("KAFKA_POOL_SIZE", d.Kafka.Producer.PoolSize)
	v.SetDefault("KAFKA_BATCH_SIZE", d.Kafka.Producer.BatchSize)
	v.SetDefault("KAFKA_BATCH_TIMEOUT", d.Kafka.Producer.BatchTimeout)
	v.SetDefault("KAFKA_WRITE_TIMEOUT", d.Kafka.Producer.WriteTimeout)
	v.SetDefault("KAFKA_REQUIRED_ACKS", d.Kafka.Producer.RequiredAcks)
	v.SetDefault("KAFKA_COMPRESSION", d.Kafka.Producer.Compression)
	v.SetDefault("KAFKA_MAX_RETRIES", d.Kafka.Producer.MaxRetries)
	v.SetDefault("KAFKA_RETRY_BACKOFF", d.Kafka.Producer.RetryBackoff)
	v.SetDefault("WORKERS", d.Workers)
	v.SetDefault("QUEUE_SIZE", d.QueueSize)

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{
		Env:      v.GetString("ENV"),
		LogLevel: v.GetString("LOG_LEVEL"),
		HTTPAddr: v.GetString("HTTP_ADDR"),
		Repository: RepositoryConfig{
			Backend:      strings.ToLower(strings.TrimSpace(v.GetString("REPOSITORY_BACKEND"))),
			PatientsFile: v.GetString("PATIENTS_FILE"),
			DatabaseURL:  v.GetString("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			TTL:      v.GetDuration("CACHE_TTL"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(v.GetString("KAFKA_BROKERS")),
			AlertTopic:    v.GetString("KAFKA_ALERT_TOPIC"),
			ReadingsTopic: v.GetString("KAFKA_READINGS_TOPIC"),
			GroupID:       v.GetString("KAFKA_GROUP_ID"),
			Producer: ProducerConfig{
				PoolSize:     v.GetInt("KAFKA_POOL_SIZE"),
				BatchSize:    v.GetInt("KAFKA_BATCH_SIZE"),
				BatchTimeout: v.GetDuration("KAFKA_BATCH_TIMEOUT"),
				WriteTimeout: v.GetDuration("KAFKA_WRITE_TIMEOUT"),
				RequiredAcks: v.GetInt("KAFKA_REQUIRED_ACKS"),
				Compression:  v.GetString("KAFKA_COMPRESSION"),
				MaxRetries:   v.GetInt("KAFKA_MAX_RETRIES"),
				RetryBackoff: v.GetDuration("KAFKA_RETRY_BACKOFF"),
			},
		},
		AlertSinks: splitList(strings.ToLower(v.GetString("ALERT_SINKS"))),
		Workers:    v.GetInt("WORKERS"),
		QueueSize:  v.GetInt("QUEUE_SIZE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Repository.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Repository.PatientsFile == "" {
			return fmt.Errorf("PATIENTS_FILE is required for the file backend")
		}
	case BackendPostgres:
		if c.Repository.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown repository backend %q", c.Repository.Backend)
	}

	for _, sink := range c.AlertSinks {
		switch sink {
		case SinkLog:
		case SinkKafka:
			if len(c.Kafka.Brokers) == 0 {
				return fmt.Errorf("KAFKA_BROKERS is required for the kafka alert sink")
			}
		default:
			return fmt.Errorf("unknown alert sink %q", sink)
		}
	}

	if c.QueueSize <= 0 {
		return fmt.Errorf("QUEUE_SIZE must be positive")
	}
	return nil
}

// IsDev reports whether the monitor runs in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// HasSink reports whether the named alert sink is enabled.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.AlertSinks {
		if s == name {
			return true
		}
	}
	return false
}

// ConsumeReadings reports whether the kafka readings consumer should run.
func (c *Config) ConsumeReadings() bool {
	return len(c.Kafka.Brokers) > 0 && c.Kafka.ReadingsTopic != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
