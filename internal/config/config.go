package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	BaseURL     string
	DatabaseURL string
	RedisURL    string

	EmailBaseURL   string
	EmailSender    string
	EmailAuthToken string
	EmailTimeout   time.Duration

	AdminUsername string
	AdminPassword string
	AdminUserID   uuid.UUID

	NumWorkers int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		EmailBaseURL:   getEnv("EMAIL_BASE_URL", ""),
		EmailSender:    getEnv("EMAIL_SENDER", ""),
		EmailAuthToken: getEnv("EMAIL_AUTH_TOKEN", ""),
		EmailTimeout:   time.Duration(getEnvInt("EMAIL_TIMEOUT_SECONDS", 10)) * time.Second,
		AdminUsername:  getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
		NumWorkers:     getEnvInt("NUM_WORKERS", 4),
	}
	cfg.BaseURL = getEnv("BASE_URL", "http://localhost:"+cfg.Port)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.EmailBaseURL == "" || cfg.EmailSender == "" || cfg.EmailAuthToken == "" {
		return nil, fmt.Errorf("EMAIL_BASE_URL, EMAIL_SENDER and EMAIL_AUTH_TOKEN are required")
	}
	if cfg.AdminPassword == "" {
		return nil, fmt.Errorf("ADMIN_PASSWORD is required")
	}

	adminID, err := uuid.Parse(getEnv("ADMIN_USER_ID", ""))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_USER_ID must be a valid UUID: %w", err)
	}
	cfg.AdminUserID = adminID

	return cfg, nil
}

// LoadWorker reads the subset of configuration the delivery worker
// needs: where the database and Redis live, and the mail-sender
// credentials.
func LoadWorker() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		EmailBaseURL:   getEnv("EMAIL_BASE_URL", ""),
		EmailSender:    getEnv("EMAIL_SENDER", ""),
		EmailAuthToken: getEnv("EMAIL_AUTH_TOKEN", ""),
		EmailTimeout:   time.Duration(getEnvInt("EMAIL_TIMEOUT_SECONDS", 10)) * time.Second,
		NumWorkers:     getEnvInt("NUM_WORKERS", 4),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.EmailBaseURL == "" || cfg.EmailSender == "" || cfg.EmailAuthToken == "" {
		return nil, fmt.Errorf("EMAIL_BASE_URL, EMAIL_SENDER and EMAIL_AUTH_TOKEN are required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
