package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envPattern = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// LoadClientConfig builds a client configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}
	applyClientEnv(&cfg)
	cfg.Sanitize()
	return &cfg, nil
}

// LoadRelayConfig builds a relay configuration from defaults, an optional YAML
// file and environment variables.
func LoadRelayConfig(path string) (*RelayConfig, error) {
	cfg := DefaultRelayConfig()
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}
	applyRelayEnv(&cfg)
	cfg.Sanitize()
	return &cfg, nil
}

// loadFile reads .env if present, then decodes the YAML file at path into out.
// An empty path skips the file.
func loadFile(path string, out any) error {
	_ = godotenv.Load()

	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(resolveEnv(data), out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// resolveEnv replaces ${NAME} and ${NAME:default} placeholders in YAML content
func resolveEnv(content []byte) []byte {
	return envPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := envPattern.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}

func applyClientEnv(cfg *ClientConfig) {
	if v := os.Getenv("GOCHAT_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("GOCHAT_ORIGIN"); v != "" {
		cfg.Server.Origin = v
	}
	if v := os.Getenv("GOCHAT_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("GOCHAT_ROOM"); v != "" {
		cfg.Room = v
	}
	if v := os.Getenv("GOCHAT_RECONNECT_DELAY"); v != "" {
		cfg.Reconnect.Delay = parseDuration(v, cfg.Reconnect.Delay)
	}
	if v := os.Getenv("GOCHAT_RECONNECT_MAX_ATTEMPTS"); v != "" {
		cfg.Reconnect.MaxAttempts = parseIntValue(v, cfg.Reconnect.MaxAttempts)
	}
	if v := os.Getenv("GOCHAT_DELIVERY_TIMEOUT"); v != "" {
		cfg.Session.DeliveryTimeout = parseDuration(v, cfg.Session.DeliveryTimeout)
	}
	if v := os.Getenv("GOCHAT_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("GOCHAT_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

func applyRelayEnv(cfg *RelayConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseInt64Value(maxSize, cfg.MaxMessageSize)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseDuration(interval, cfg.RateLimit.RefillInterval)
	}
	if room := os.Getenv("DEFAULT_ROOM"); room != "" {
		cfg.DefaultRoom = room
	}
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go duration strings ("1500ms") or whole seconds ("5").
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
