package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	RedisURL    string
	RedisRelay  bool
	JWTSecret   string
	TokenTTL    time.Duration
	FrontendURL []string

	MinioURL       string
	MinioPublicURL string
	MinioUser      string
	MinioPassword  string
	MinioBucket    string
	MaxFileSize    int64

	WSEventsPerSecond float64
	WSEventBurst      int

	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// LoadEnv подгружает .env.local, затем .env
func LoadEnv(logger *zap.Logger) {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			logger.Warn(".env not found, using environment variables")
			return
		}
	}
	logger.Info("ENV file loaded")
}

func Load() Config {
	ttl, err := time.ParseDuration(getEnv("TOKEN_TTL", "24h"))
	if err != nil {
		ttl = 24 * time.Hour
	}

	return Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "dev"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisRelay:  getEnvAsBool("REDIS_RELAY", false),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenTTL:    ttl,
		FrontendURL: splitList(getEnv("FRONTEND_URL", "http://localhost:5173")),

		MinioURL:       getEnv("MINIO_URL", "localhost:9000"),
		MinioPublicURL: getEnv("MINIO_PUBLIC_URL", ""),
		MinioUser:      getEnv("MINIO_USER", "minioadmin"),
		MinioPassword:  getEnv("MINIO_PASSWORD", "minioadmin"),
		MinioBucket:    getEnv("MINIO_BUCKET", "chat-attachments"),
		MaxFileSize:    getEnvAsInt64("MAX_FILE_SIZE", 10*1024*1024),

		WSEventsPerSecond: getEnvAsFloat("WS_EVENTS_PER_SECOND", 10),
		WSEventBurst:      getEnvAsInt("WS_EVENT_BURST", 20),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminName:     getEnv("ADMIN_NAME", "Support"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
