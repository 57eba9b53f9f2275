package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the data stream client
type Config struct {
	// Streaming endpoint
	DatastreamURL string
	APIKey        string

	// Reconnection policy
	AutoReconnect       bool
	ReconnectDelay      time.Duration
	ReconnectDelayMax   time.Duration
	RandomizationFactor float64

	// Run the transport state machine inside an isolated worker goroutine
	UseWorker bool

	// Duplicate-transaction suppression
	DedupCapacity int
	DedupTTL      time.Duration

	// Chunked aggregation
	ChunkSize int

	// Optional Kafka forwarding of deduped trade frames
	KafkaBrokers string
	KafkaTopic   string

	// Optional Redis cache for computed stats snapshots
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StatsTTL      time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	return Config{
		DatastreamURL:       getEnv("DATASTREAM_URL", "wss://datastream.solanatracker.io"),
		APIKey:              os.Getenv("DATASTREAM_API_KEY"),
		AutoReconnect:       getEnvBool("AUTO_RECONNECT", true),
		ReconnectDelay:      getEnvDurationMs("RECONNECT_DELAY_MS", 2500),
		ReconnectDelayMax:   getEnvDurationMs("RECONNECT_DELAY_MAX_MS", 4500),
		RandomizationFactor: getEnvFloat("RANDOMIZATION_FACTOR", 0.5),
		UseWorker:           getEnvBool("USE_WORKER", false),
		DedupCapacity:       getEnvInt("DEDUP_CAPACITY", 65536),
		DedupTTL:            getEnvDurationMs("DEDUP_TTL_MS", 0),
		ChunkSize:           getEnvInt("AGGREGATION_CHUNK_SIZE", 5000),
		KafkaBrokers:        os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "trade-events"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		StatsTTL:            getEnvDurationMs("STATS_TTL_MS", 300000),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDurationMs(key string, fallbackMs int64) time.Duration {
	ms := fallbackMs
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			ms = parsed
		}
	}
	return time.Duration(ms) * time.Millisecond
}
