package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Dispatch modes supported by the composition roots.
const (
	DispatchPool  = "pool"
	DispatchQueue = "queue"
)

// Config holds shared runtime configuration for the API and worker services.
type Config struct {
	Env         string
	HTTPPort    string
	CORSOrigins []string

	MetricsAddr string

	DispatchMode   string
	PoolWorkers    int
	PoolQueueDepth int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DispatchKey   string
	PopTimeout    time.Duration

	StreamInterval time.Duration

	UploadDir  string
	OutputDir  string
	StaticBase string

	Model           string
	OpenAIBaseURL   string
	OpenAIAPIKey    string
	GenerateTimeout time.Duration

	RateLimitCapacity int
	RateLimitRefill   float64
}

// Load reads configuration from environment variables with sane defaults for local development.
func Load() Config {
	return Config{
		Env:               getEnv("APP_ENV", "dev"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		CORSOrigins:       strings.Split(getEnv("CORS_ORIGINS", "*"), ","),
		MetricsAddr:       getEnv("METRICS_ADDR", ":9090"),
		DispatchMode:      getEnv("DISPATCH_MODE", DispatchPool),
		PoolWorkers:       getEnvInt("POOL_WORKERS", 4),
		PoolQueueDepth:    getEnvInt("POOL_QUEUE_DEPTH", 64),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		DispatchKey:       getEnv("DISPATCH_KEY", "dispatch:tasks"),
		PopTimeout:        getEnvDuration("DISPATCH_POP_TIMEOUT", time.Second),
		StreamInterval:    getEnvDuration("STREAM_INTERVAL", 500*time.Millisecond),
		UploadDir:         getEnv("UPLOAD_DIR", "uploaded_files"),
		OutputDir:         getEnv("OUTPUT_DIR", "generated_files"),
		StaticBase:        getEnv("STATIC_BASE", "/static"),
		Model:             getEnv("MODEL_NAME", "gpt-4o-mini"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		GenerateTimeout:   getEnvDuration("GENERATE_TIMEOUT", 2*time.Minute),
		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 20),
		RateLimitRefill:   getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 5),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
