package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service configuration, loaded from the environment. The
// reset cooldown and quota defaults live here so they are injected into the
// core constructors instead of being read as ambient state.
type Config struct {
	ServiceName       string
	DatabaseURL       string
	HTTPListenAddr    string
	MetricsListenAddr string
	LogLevel          string

	HWIDResetCooldown    time.Duration
	DefaultMaxHWIDResets int
	VerifyRetryAttempts  int
	KeyFormat            string

	AuditWebhookURL string
	AuditAMQPURL    string
	AuditAMQPQueue  string
	AuditBufferSize int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cooldown, err := getDuration("HWID_RESET_COOLDOWN", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	maxResets, err := getInt("DEFAULT_MAX_HWID_RESETS", 3)
	if err != nil {
		return nil, err
	}
	verifyAttempts, err := getInt("VERIFY_RETRY_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	auditBuffer, err := getInt("AUDIT_BUFFER_SIZE", 1024)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServiceName:       getEnv("SERVICE_NAME", "license-api"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", ":9090"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),

		HWIDResetCooldown:    cooldown,
		DefaultMaxHWIDResets: maxResets,
		VerifyRetryAttempts:  verifyAttempts,
		KeyFormat:            getEnv("KEY_FORMAT", "default"),

		AuditWebhookURL: getEnv("AUDIT_WEBHOOK_URL", ""),
		AuditAMQPURL:    getEnv("AUDIT_AMQP_URL", ""),
		AuditAMQPQueue:  getEnv("AUDIT_AMQP_QUEUE", "license.audit"),
		AuditBufferSize: auditBuffer,
	}

	return cfg, nil
}

// Validate checks that everything the server needs is present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.KeyFormat != "default" && c.KeyFormat != "hex" {
		return fmt.Errorf("KEY_FORMAT must be \"default\" or \"hex\", got %q", c.KeyFormat)
	}
	if c.HWIDResetCooldown <= 0 {
		return fmt.Errorf("HWID_RESET_COOLDOWN must be positive")
	}
	if c.DefaultMaxHWIDResets < 0 {
		return fmt.Errorf("DEFAULT_MAX_HWID_RESETS must be >= 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
