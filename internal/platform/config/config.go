package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr     string
	LogLevel slog.Level
	// IDNamespace prefixes instance uuids to form absolute identifiers.
	IDNamespace string
	// RoleMappingPath points at a YAML role table; empty uses the built-in roles.
	RoleMappingPath string
	TxTimeout       time.Duration

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	JWT      JWTConfig
}

// PostgresConfig selects the relational backend. An empty DSN keeps every store in memory.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig selects the identifier registry backend. An empty URL keeps it in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig drives the outbox relay. No brokers disables it.
type KafkaConfig struct {
	Brokers        []string
	Topic          string
	Partitions     int32
	PollInterval   time.Duration
	RelayBatchSize int
}

type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

const DefaultIDNamespace = "https://kg.example.org/instances/"

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("KG_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:            envString("KG_ADDR", ":8080"),
		LogLevel:        envLevel("KG_LOG_LEVEL", slog.LevelInfo),
		IDNamespace:     envString("KG_ID_NAMESPACE", DefaultIDNamespace),
		RoleMappingPath: os.Getenv("KG_ROLE_MAPPING"),
		TxTimeout:       envDuration("KG_TX_TIMEOUT", 5*time.Second),
		Postgres: PostgresConfig{
			DSN:             os.Getenv("KG_POSTGRES_DSN"),
			MaxOpenConns:    envInt("KG_POSTGRES_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("KG_POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("KG_POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("KG_REDIS_URL"),
			PoolSize:     envInt("KG_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("KG_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("KG_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("KG_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("KG_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:        envList("KG_KAFKA_BROKERS"),
			Topic:          envString("KG_KAFKA_TOPIC", "kg.events"),
			Partitions:     int32(envInt("KG_KAFKA_PARTITIONS", 6)),
			PollInterval:   envDuration("KG_OUTBOX_POLL_INTERVAL", time.Second),
			RelayBatchSize: envInt("KG_OUTBOX_BATCH_SIZE", 100),
		},
		JWT: JWTConfig{
			SigningKey: jwtSigningKey,
			Issuer:     envString("KG_JWT_ISSUER", "kgcore"),
			Audience:   envString("KG_JWT_AUDIENCE", "kgcore"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envLevel(key string, fallback slog.Level) slog.Level {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}
	return level
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
