package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the process configuration read at startup
type Config struct {
	Port                    string
	GinMode                 string
	DatabaseURL             string
	DataPath                string
	JWTSecret               string
	APIMasterSecret         string
	AdminUsername           string
	AdminPassword           string
	LogLevel                string
	AllocationHorizonMonths int
	TokenTTL                time.Duration
}

// envPaths are tried in order; the first existing file is loaded
var envPaths = []string{".env", "../.env", "../../.env"}

// LoadEnv loads the first .env file found near the working directory
func LoadEnv() {
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// Load loads .env files and builds a Config from the environment
func Load() Config {
	LoadEnv()
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env files
func FromEnv() Config {
	return Config{
		Port:                    getEnv("PORT", "8000"),
		GinMode:                 os.Getenv("GIN_MODE"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		DataPath:                getEnv("DATA_PATH", "turni.db"),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		APIMasterSecret:         os.Getenv("API_MASTER_SECRET"),
		AdminUsername:           getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:           getEnv("ADMIN_PASSWORD", "admin123"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		AllocationHorizonMonths: getEnvInt("ALLOCATION_HORIZON_MONTHS", 3),
		TokenTTL:                getEnvDuration("TOKEN_TTL", 24*time.Hour),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
