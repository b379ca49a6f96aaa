package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Logger    LoggerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Engine    EngineConfig
	Reconcile ReconcileConfig
}

type ServerConfig struct {
	AppEnv   string
	GRPCPort string
	// HTTPPort serves /metrics and /healthz.
	HTTPPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type RedisConfig struct {
	Enabled       bool
	Addr          string
	Password      string
	DB            int
	EventsChannel string
	CatalogTTL    time.Duration
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string
}

type EngineConfig struct {
	// GroupSize is how many animals of one type share a group ordinal.
	GroupSize         int
	// AllocationRetries bounds serializable-transaction retries.
	AllocationRetries int
}

type ReconcileConfig struct {
	Cron    string
	Timeout time.Duration
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:   getEnv("APP_ENV", "development"),
			GRPCPort: getEnv("GRPC_PORT", ":8082"),
			HTTPPort: getEnv("HTTP_PORT", ":9090"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5432"),
			User:            getEnv("POSTGRES_USER", "qurban"),
			Password:        getEnv("POSTGRES_PASSWORD", "qurban"),
			DBName:          getEnv("POSTGRES_DB", "qurban"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("POSTGRES_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("POSTGRES_CONN_MAX_IDLE_TIME", 60),
		},
		Redis: RedisConfig{
			Enabled:       getEnvBool("REDIS_ENABLED", true),
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			EventsChannel: getEnv("REDIS_EVENTS_CHANNEL", "qurban.events"),
			CatalogTTL:    getEnvDuration("REDIS_CATALOG_TTL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TOPIC_REGISTRATIONS", "qurban.registrations"),
			GroupID: getEnv("KAFKA_GROUP_ID", "qurban-engine"),
		},
		Engine: EngineConfig{
			GroupSize:         getEnvInt("GROUP_SIZE", 50),
			AllocationRetries: getEnvInt("ALLOCATION_RETRIES", 5),
		},
		Reconcile: ReconcileConfig{
			Cron:    getEnv("RECONCILE_CRON", "@every 15m"),
			Timeout: getEnvDuration("RECONCILE_TIMEOUT", time.Minute),
		},
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.GroupSize <= 0 {
		errs = append(errs, fmt.Errorf("GROUP_SIZE must be positive, got %d", c.Engine.GroupSize))
	}
	if c.Engine.AllocationRetries <= 0 {
		errs = append(errs, fmt.Errorf("ALLOCATION_RETRIES must be positive, got %d", c.Engine.AllocationRetries))
	}
	if c.Reconcile.Timeout <= 0 {
		errs = append(errs, errors.New("RECONCILE_TIMEOUT must be positive"))
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, errors.New("KAFKA_BROKERS and KAFKA_TOPIC_REGISTRATIONS are required when KAFKA_ENABLED"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when REDIS_ENABLED"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		var out []string
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	return fallback
}
