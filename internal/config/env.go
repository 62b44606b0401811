package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL   string
	Port          string
	InternalToken string

	// Embedding provider: "openai" (any OpenAI-compatible endpoint) or "gemini".
	EmbedProvider    string
	EmbedAPIKey      string
	EmbedBaseURL     string
	EmbedBatchSize   int
	EmbedMaxRetries  int
	EmbedRetryBaseMs int

	// Crawl limits.
	CrawlConcurrency   int
	CrawlMaxPages      int
	CrawlMaxDepth      int
	CrawlMinChars      int
	CrawlRespectRobots bool
	CrawlRatePerSecond float64
	CrawlUserAgent     string

	// Chunking.
	ChunkSizeTokens    int
	ChunkOverlapTokens int

	// Estimates.
	EstimateSamplePages int
	EstimateTTLMinutes  int

	// Optional S3 archival of uploaded documents.
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
}

// LoadConfig loads the environment variables and returns config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		Port:          getEnv("PORT", "8080"),
		InternalToken: getEnv("INTERNAL_API_TOKEN", ""),

		EmbedProvider:    getEnv("EMBED_PROVIDER", "openai"),
		EmbedAPIKey:      getEnv("EMBED_API_KEY", ""),
		EmbedBaseURL:     getEnv("EMBED_BASE_URL", "https://api.openai.com/v1"),
		EmbedBatchSize:   getEnvInt("EMBED_BATCH_SIZE", 32),
		EmbedMaxRetries:  getEnvInt("EMBED_MAX_RETRIES", 5),
		EmbedRetryBaseMs: getEnvInt("EMBED_RETRY_BASE_MS", 500),

		CrawlConcurrency:   getEnvInt("CRAWL_CONCURRENCY", 4),
		CrawlMaxPages:      getEnvInt("CRAWL_MAX_PAGES", 200),
		CrawlMaxDepth:      getEnvInt("CRAWL_MAX_DEPTH", 5),
		CrawlMinChars:      getEnvInt("CRAWL_MIN_CHARS", 200),
		CrawlRespectRobots: getEnvBool("CRAWL_RESPECT_ROBOTS", true),
		CrawlRatePerSecond: float64(getEnvInt("CRAWL_RATE_LIMIT", 0)),
		CrawlUserAgent:     getEnv("CRAWL_USER_AGENT", "sitewise-knowledge-engine/1.0"),

		ChunkSizeTokens:    getEnvInt("CHUNK_SIZE_TOKENS", 400),
		ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 40),

		EstimateSamplePages: getEnvInt("ESTIMATE_SAMPLE_PAGES", 8),
		EstimateTTLMinutes:  getEnvInt("ESTIMATE_TTL_MINUTES", 60),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "sitewise-docs"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.InternalToken == "" {
		log.Fatal("INTERNAL_API_TOKEN not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}
