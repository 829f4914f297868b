package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Vector store selection: "qdrant", "pgvector" or "memory".
	StoreBackend string
	DataDir      string
	QdrantURL    string
	QdrantAPIKey string
	DatabaseURL  string
	Collection   string
	EmbedDim     int

	// Embedding / generation providers: "ollama" or "gemini".
	EmbedProvider string
	GenProvider   string
	OllamaURL     string
	OllamaModel   string
	EmbedModel    string
	GeminiAPIKey  string
	GeminiModel   string

	ChunkSizeTokens    int
	ChunkOverlapTokens int
	MaxRetrievedChunks int
	MaxGenTokens       int
	Temperature        float64

	// Upload storage: "local" or "s3".
	UploadBackend string
	UploadDir     string
	AwsAccessKey  string
	AwsSecretKey  string
	AwsRegion     string
	BucketName    string

	MaxUploadBytes    int64
	AllowedExtensions []string
	AllowedOrigins    []string
	LogLevel          string
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8000"),

		StoreBackend: getEnv("STORE_BACKEND", "qdrant"),
		DataDir:      getEnv("DATA_DIR", "./data/qdrant"),
		QdrantURL:    getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey: getEnv("QDRANT_API_KEY", ""),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		Collection:   getEnv("COLLECTION_NAME", "thinkbook"),
		EmbedDim:     getEnvInt("EMBED_DIM", 384),

		EmbedProvider: getEnv("EMBED_PROVIDER", "ollama"),
		GenProvider:   getEnv("GEN_PROVIDER", "ollama"),
		OllamaURL:     getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3.1:8b"),
		EmbedModel:    getEnv("EMBED_MODEL", "all-minilm"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		ChunkSizeTokens:    getEnvInt("CHUNK_SIZE_TOKENS", 800),
		ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 150),
		MaxRetrievedChunks: getEnvInt("MAX_RETRIEVED_CHUNKS", 4),
		MaxGenTokens:       getEnvInt("MAX_GEN_TOKENS", 512),
		Temperature:        getEnvFloat("TEMPERATURE", 0.0),

		UploadBackend: getEnv("UPLOAD_BACKEND", "local"),
		UploadDir:     getEnv("UPLOAD_DIR", "./data/uploads"),
		AwsAccessKey:  getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:  getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:     getEnv("AWS_REGION", "us-east-2"),
		BucketName:    getEnv("BUCKET_NAME", "thinkbook-uploads"),

		MaxUploadBytes:    int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,
		AllowedExtensions: getEnvList("ALLOWED_EXTENSIONS", ".txt,.md,.markdown,.csv,.log,.pdf,.docx,.doc,.html,.htm,.rtf,.odt,.png,.jpg,.jpeg,.tiff"),
		AllowedOrigins:    getEnvList("ALLOWED_ORIGINS", "http://localhost:3000"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}

	if cfg.StoreBackend == "pgvector" && cfg.DatabaseURL == "" {
		log.Fatal("STORE_BACKEND=pgvector requires DATABASE_URL")
	}

	return cfg
}

// Helper to read environment variables with a default fallback.
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

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvList(key, def string) []string {
	raw := getEnv(key, def)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
