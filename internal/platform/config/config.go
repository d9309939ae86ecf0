package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	PostgresURL     string
	Redis           RedisConfig
	Kafka           KafkaConfig
	JWTSigningKey   string
	SuperAdminEmail string
	Invalidation    Invalidation
}

// RedisConfig holds connection settings for the shared Redis instance.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the change-feed consumer.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
	GroupPrefix string
}

// Invalidation groups the tunables of the signal pipeline. The reference
// values mirror production defaults; none of them is load-bearing for
// correctness, only for how quickly views converge.
type Invalidation struct {
	StalenessWindow time.Duration
	CoalesceWindow  time.Duration
	PollInterval    time.Duration
	BroadcastClear  time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("PORTALD_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	brokers := []string{"localhost:9092"}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = strings.Split(v, ",")
	}

	return Server{
		Addr:        addr,
		PostgresURL: os.Getenv("POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:     brokers,
			TopicPrefix: envOr("KAFKA_TOPIC_PREFIX", "quorum.cdc."),
			GroupPrefix: envOr("KAFKA_GROUP_PREFIX", "quorum-portal-"),
		},
		JWTSigningKey:   jwtSigningKey,
		SuperAdminEmail: envOr("SUPER_ADMIN_EMAIL", "admin@quorum.local"),
		Invalidation: Invalidation{
			StalenessWindow: durationOr("INVALIDATION_STALENESS_WINDOW", 5*time.Second),
			CoalesceWindow:  durationOr("INVALIDATION_COALESCE_WINDOW", 150*time.Millisecond),
			PollInterval:    durationOr("INVALIDATION_POLL_INTERVAL", 5*time.Minute),
			BroadcastClear:  durationOr("INVALIDATION_BROADCAST_CLEAR", time.Second),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
