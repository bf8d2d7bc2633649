package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// apiKeyVars are checked in order; the first non-empty value wins.
var apiKeyVars = []string{"EMERGENT_LLM_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY"}

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port           string
	PostgresDSN    string
	MongoURI       string
	MongoDB        string
	RedisAddr      string
	RedisPassword  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	CORSOrigins    []string
	LogLevel       string

	GenerationBackend string
	IntegrationURL    string
	LLMAPIKey         string
	LLMModel          string

	MaxConcurrentJobs int64
	SignupCredits     int
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:              getenv("PORT", "8080"),
		PostgresDSN:       getenv("POSTGRES_DSN", ""),
		MongoURI:          getenv("MONGO_URI", ""),
		MongoDB:           getenv("MONGO_DB", "research_assistant"),
		RedisAddr:         getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		MinioEndpoint:     getenv("MINIO_ENDPOINT", "minio:9000"),
		MinioAccessKey:    getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:    getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:       getenv("MINIO_BUCKET", "research-uploads"),
		MinioUseSSL:       getenv("MINIO_USE_SSL", "false") == "true",
		CORSOrigins:       splitOrigins(getenv("CORS_ORIGINS", "http://localhost:3000")),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		GenerationBackend: getenv("GENERATION_BACKEND", "fallback"),
		IntegrationURL:    getenv("INTEGRATION_URL", ""),
		LLMAPIKey:         firstEnv(apiKeyVars...),
		LLMModel:          getenv("LLM_MODEL", "gemini-2.0-flash"),
		MaxConcurrentJobs: int64(getint("MAX_CONCURRENT_JOBS", 0)),
		SignupCredits:     getint("SIGNUP_CREDITS", 100),
	}
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := getenv(k, ""); v != "" {
			return v
		}
	}
	return ""
}

func splitOrigins(raw string) []string {
	if raw == "*" {
		return []string{"*"}
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
