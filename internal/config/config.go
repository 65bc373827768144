package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBFile      string
	APIAddr     string
	TokenExpiry time.Duration

	// AI gateway settings.
	AIEndpoint string
	AIModel    string
	AIAPIKey   string
	AITimeout  time.Duration
	AIRetries  int

	// Web Push settings. Push delivery is disabled when the keys are empty.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

func Load() (*Config, error) {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_EXPIRY: %w", err)
	}

	aiTimeout, err := time.ParseDuration(getEnv("AI_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid AI_TIMEOUT: %w", err)
	}

	aiRetries, err := strconv.Atoi(getEnv("AI_RETRIES", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid AI_RETRIES: %w", err)
	}

	cfg := &Config{
		DBFile:          getEnv("PARLEY_DB", "parley.db"),
		APIAddr:         getEnv("API_ADDR", ":8080"),
		TokenExpiry:     tokenExpiry,
		AIEndpoint:      getEnv("AI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta/models"),
		AIModel:         getEnv("AI_MODEL", "gemini-2.5-flash"),
		AIAPIKey:        os.Getenv("GOOGLE_API_KEY"),
		AITimeout:       aiTimeout,
		AIRetries:       aiRetries,
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@localhost"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	if c.AIRetries < 0 {
		return fmt.Errorf("AI_RETRIES must not be negative")
	}

	if c.AITimeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT must be greater than 0")
	}

	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
