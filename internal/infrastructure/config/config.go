package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the service.
type Config struct {
	// App
	AppVersion string
	LogLevel   string

	// Server
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MongoDB
	MongoURI string
	MongoDB  string

	// PostgreSQL (crew roster)
	PostgresDSN string

	// Engine
	SiteCapacities    map[string]float64
	GraceWindow       time.Duration
	AdvisoryThreshold float64

	// Reaper
	ReaperCron string
}

// LoadConfig loads configuration from environment variables, reading a .env
// file first if one exists.
func LoadConfig() (*Config, error) {
	godotenv.Load()

	capacities, err := parseSiteCapacities(getEnv("SITE_CAPACITIES", ""))
	if err != nil {
		return nil, err
	}

	config := &Config{
		AppVersion: getEnv("APP_VERSION", "1.0.0"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		Port:         getEnv("PORT", "8080"),
		ReadTimeout:  time.Duration(getEnvAsInt("READ_TIMEOUT", 30)) * time.Second,
		WriteTimeout: time.Duration(getEnvAsInt("WRITE_TIMEOUT", 30)) * time.Second,

		MongoURI: getEnv("MONGODB_DSN", "mongodb://localhost:27017"),
		MongoDB:  getEnv("MONGO_DB", "workorders"),

		PostgresDSN: getEnv("POSTGRES_DSN", "host=localhost user=postgres dbname=roster port=5432 sslmode=disable"),

		SiteCapacities:    capacities,
		GraceWindow:       time.Duration(getEnvAsInt("GRACE_WINDOW_SECONDS", 300)) * time.Second,
		AdvisoryThreshold: getEnvAsFloat("ADVISORY_THRESHOLD", 0.9),

		ReaperCron: getEnv("REAPER_CRON", "*/5 * * * *"),
	}

	return config, nil
}

// parseSiteCapacities parses "site-a=500,site-b=250" into a capacity map.
func parseSiteCapacities(raw string) (map[string]float64, error) {
	capacities := make(map[string]float64)
	if strings.TrimSpace(raw) == "" {
		return capacities, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed SITE_CAPACITIES entry %q", pair)
		}
		qty, err := strconv.ParseFloat(parts[1], 64)
		if err != nil || qty <= 0 {
			return nil, fmt.Errorf("invalid capacity for site %q: %q", parts[0], parts[1])
		}
		capacities[parts[0]] = qty
	}
	return capacities, nil
}

// Helper functions to get environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
