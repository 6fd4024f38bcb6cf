package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	LLMBaseURL     string
	LLMAPIKey      string
	LLMTimeout     time.Duration
	RewriterModel  string
	GeneratorModel string

	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingModel   string
	EmbeddingTimeout time.Duration
	EmbedRateLimit   float64

	RerankURL     string
	RerankModel   string
	RerankTimeout time.Duration

	OCRURL     string
	OCRTimeout time.Duration

	RetrievalTopK     int
	RerankTopK        int
	MaxVariantWorkers int
	ChunkSize         int
	ChunkOverlap      int

	CacheSize int
	CacheTTL  time.Duration
}

func Load() *Config {
	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8000"),

		DBHost:     getEnv("DB_HOST", "retrieval-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "retrieval_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "retrieval_password"),
		DBName:     getEnv("DB_NAME", "retrieval_db"),

		LLMBaseURL:     getEnv("LLM_BASE_URL", "http://llm-gateway:8080"),
		LLMAPIKey:      getSecret("LLM_API_KEY", "LLM_API_KEY_FILE", ""),
		LLMTimeout:     getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		RewriterModel:  getEnv("REWRITER_MODEL", "gpt-4o-mini"),
		GeneratorModel: getEnv("GENERATOR_MODEL", "gpt-4o-mini"),

		EmbeddingBaseURL: getEnvWithAlt("EMBEDDING_BASE_URL", "LLM_BASE_URL", "http://llm-gateway:8080"),
		EmbeddingAPIKey:  getSecret("EMBEDDING_API_KEY", "EMBEDDING_API_KEY_FILE", ""),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingTimeout: getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		EmbedRateLimit:   getEnvFloat("EMBED_RATE_LIMIT", 5),

		RerankURL:     getEnv("RERANK_URL", "http://reranker:8001"),
		RerankModel:   getEnv("RERANK_MODEL", "cross-encoder/ms-marco-MiniLM-L-6-v2"),
		RerankTimeout: getEnvDuration("RERANK_TIMEOUT", 15*time.Second),

		OCRURL:     getEnv("OCR_URL", "http://ocr:8002"),
		OCRTimeout: getEnvDuration("OCR_TIMEOUT", 120*time.Second),

		RetrievalTopK:     getEnvInt("RETRIEVAL_TOP_K", 100),
		RerankTopK:        getEnvInt("RERANK_TOP_K", 10),
		MaxVariantWorkers: getEnvInt("MAX_VARIANT_WORKERS", 4),
		ChunkSize:         getEnvInt("CHUNK_SIZE", 450),
		ChunkOverlap:      getEnvInt("CHUNK_OVERLAP", 75),

		CacheSize: getEnvInt("ANSWER_CACHE_SIZE", 256),
		CacheTTL:  getEnvDuration("ANSWER_CACHE_TTL", 15*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getSecret reads envKey directly, then falls back to the file named by
// fileEnvKey (docker secrets style), then to the fallback.
func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}

	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	return fallback
}

func getEnvWithAlt(key, altKey, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if value, ok := os.LookupEnv(altKey); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvDuration parses values like "30s" or "2m". Bare integers are taken
// as seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
