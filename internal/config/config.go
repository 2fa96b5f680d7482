package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration.
type Config struct {
	// Required
	BusURL string

	// Optional, with defaults
	WSPort                int
	LogLevel              string
	HeartbeatInterval     time.Duration
	ClientTimeout         time.Duration
	OutboundQueueCapacity int
	AllowedOrigins        []string
	RateLimitWSIP         string
	GoEnv                 string
	OTelCollectorAddr     string
}

// ValidateEnv validates all required environment variables and returns
// a Config object. Returns an error if any required variable is
// missing or invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: BUS_URL (format: host:port)
	cfg.BusURL = os.Getenv("BUS_URL")
	if cfg.BusURL == "" {
		errors = append(errors, "BUS_URL is required")
	} else if !isValidHostPort(cfg.BusURL) {
		errors = append(errors, fmt.Sprintf("BUS_URL must be in format 'host:port' (got '%s')", cfg.BusURL))
	}

	// Optional: WS_PORT (defaults to 3001)
	cfg.WSPort = 3001
	if raw := os.Getenv("WS_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("WS_PORT must be a valid port number between 1 and 65535 (got '%s')", raw))
		} else {
			cfg.WSPort = port
		}
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Optional: HEARTBEAT_INTERVAL_SECONDS (defaults to 5)
	cfg.HeartbeatInterval = 5 * time.Second
	if raw := os.Getenv("HEARTBEAT_INTERVAL_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 1 {
			errors = append(errors, fmt.Sprintf("HEARTBEAT_INTERVAL_SECONDS must be a positive integer (got '%s')", raw))
		} else {
			cfg.HeartbeatInterval = time.Duration(seconds) * time.Second
		}
	}

	// Optional: CLIENT_TIMEOUT_SECONDS (defaults to 10)
	cfg.ClientTimeout = 10 * time.Second
	if raw := os.Getenv("CLIENT_TIMEOUT_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 1 {
			errors = append(errors, fmt.Sprintf("CLIENT_TIMEOUT_SECONDS must be a positive integer (got '%s')", raw))
		} else {
			cfg.ClientTimeout = time.Duration(seconds) * time.Second
		}
	}

	// Optional: OUTBOUND_QUEUE_CAPACITY (defaults to 256)
	cfg.OutboundQueueCapacity = 256
	if raw := os.Getenv("OUTBOUND_QUEUE_CAPACITY"); raw != "" {
		capacity, err := strconv.Atoi(raw)
		if err != nil || capacity < 1 {
			errors = append(errors, fmt.Sprintf("OUTBOUND_QUEUE_CAPACITY must be a positive integer (got '%s')", raw))
		} else {
			cfg.OutboundQueueCapacity = capacity
		}
	}

	// Optional: ALLOWED_ORIGINS (comma-separated, defaults to localhost:3000)
	originsRaw := getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	for _, origin := range strings.Split(originsRaw, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	// Optional: RATE_LIMIT_WS_IP (defaults to "100-M")
	cfg.RateLimitWSIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: OTEL_COLLECTOR_ADDR (empty disables tracing)
	cfg.OTelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port".
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	if parts[0] == "" {
		return false
	}

	return true
}

// logValidatedConfig logs the validated configuration with secrets redacted.
func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated successfully")
	slog.Info("configuration",
		"bus_url", redactSecret(cfg.BusURL),
		"ws_port", cfg.WSPort,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"client_timeout", cfg.ClientTimeout,
		"outbound_queue_capacity", cfg.OutboundQueueCapacity,
		"allowed_origins", cfg.AllowedOrigins,
		"rate_limit_ws_ip", cfg.RateLimitWSIP,
		"otel_enabled", cfg.OTelCollectorAddr != "",
	)
}

// getEnvOrDefault returns the value of the environment variable or a
// default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 8 characters.
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
