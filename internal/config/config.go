// Package config provides configuration types, defaults and validation for the
// GoChat client and the development relay.
package config

import (
	"time"
)

type (
	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, stderr, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps
		TimeFormat string `yaml:"time_format"` // time format for log timestamps
	}

	// MetricsConfig controls the Prometheus registry and its HTTP endpoint.
	MetricsConfig struct {
		Namespace string `yaml:"namespace"`
		Addr      string `yaml:"addr"` // empty disables the /metrics listener
	}

	// ServerConfig describes where the client connects.
	ServerConfig struct {
		URL              string        `yaml:"url"`    // explicit ws:// or wss:// endpoint
		Origin           string        `yaml:"origin"` // page origin the endpoint is derived from when URL is empty
		Path             string        `yaml:"path"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	}

	// ReconnectConfig is the reconnect policy of the connection manager.
	ReconnectConfig struct {
		Delay       time.Duration `yaml:"delay"`
		MaxDelay    time.Duration `yaml:"max_delay"` // 0 caps at five minutes
		Multiplier  float64       `yaml:"multiplier"`
		Jitter      float64       `yaml:"jitter"`       // fraction of the delay, 0..1
		MaxAttempts int           `yaml:"max_attempts"` // 0 retries forever
	}

	// SessionConfig holds the per-session limits.
	SessionConfig struct {
		DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
		HistorySize     int           `yaml:"history_size"`
		NetworkLogSize  int           `yaml:"network_log_size"`
	}

	// UIConfig selects the renderer.
	UIConfig struct {
		Mode string `yaml:"mode"` // tui, plain
	}

	// ClientConfig is the complete chat client configuration.
	ClientConfig struct {
		Username  string          `yaml:"username"`
		Room      string          `yaml:"room"`
		Server    ServerConfig    `yaml:"server"`
		Reconnect ReconnectConfig `yaml:"reconnect"`
		Session   SessionConfig   `yaml:"session"`
		UI        UIConfig        `yaml:"ui"`
		Logger    LoggerConfig    `yaml:"logger"`
		Metrics   MetricsConfig   `yaml:"metrics"`
	}

	// RateLimitConfig defines the parameters for per-connection message rate limiting.
	RateLimitConfig struct {
		Burst          int           `yaml:"burst"`
		RefillInterval time.Duration `yaml:"refill_interval"`
	}

	// RelayConfig holds the development relay settings including security controls.
	RelayConfig struct {
		Port            string          `yaml:"port"`
		AllowedOrigins  []string        `yaml:"allowed_origins"`
		MaxMessageSize  int64           `yaml:"max_message_size"`
		DefaultRoom     string          `yaml:"default_room"`
		RateLimit       RateLimitConfig `yaml:"rate_limit"`
		ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
		Logger          LoggerConfig    `yaml:"logger"`
		Metrics         MetricsConfig   `yaml:"metrics"`
	}
)

// Defaults shared by the client and the relay.
const (
	DefaultRoom            = "lobby"
	DefaultPath            = "/ws"
	DefaultReconnectDelay  = 5 * time.Second
	DefaultDeliveryTimeout = 60 * time.Second
	DefaultHistorySize     = 200
	DefaultNetworkLogSize  = 100
)

// DefaultClientConfig returns a client configuration populated with default
// values for all settings.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Room: DefaultRoom,
		Server: ServerConfig{
			Origin:           "http://localhost:8080",
			Path:             DefaultPath,
			HandshakeTimeout: 10 * time.Second,
		},
		Reconnect: ReconnectConfig{
			Delay:      DefaultReconnectDelay,
			Multiplier: 1,
		},
		Session: SessionConfig{
			DeliveryTimeout: DefaultDeliveryTimeout,
			HistorySize:     DefaultHistorySize,
			NetworkLogSize:  DefaultNetworkLogSize,
		},
		UI: UIConfig{Mode: "tui"},
		Logger: LoggerConfig{
			Level:    "info",
			Format:   "console",
			Output:   "file",
			FilePath: "logs/chatclient.log",
		},
		Metrics: MetricsConfig{Namespace: "gochat_client"},
	}
}

// DefaultRelayConfig returns a relay configuration populated with default values.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		DefaultRoom:    DefaultRoom,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		ShutdownTimeout: 10 * time.Second,
		Logger: LoggerConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Metrics: MetricsConfig{Namespace: "gochat_relay"},
	}
}

// Sanitize repairs invalid or missing values in place.
func (c *ClientConfig) Sanitize() {
	if c.Room == "" {
		c.Room = DefaultRoom
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultPath
	}
	if c.Server.HandshakeTimeout <= 0 {
		c.Server.HandshakeTimeout = 10 * time.Second
	}

	if c.Reconnect.Delay <= 0 {
		c.Reconnect.Delay = DefaultReconnectDelay
	}
	if c.Reconnect.Multiplier < 1 {
		c.Reconnect.Multiplier = 1
	}
	if c.Reconnect.MaxDelay < 0 {
		c.Reconnect.MaxDelay = 0
	}
	if c.Reconnect.MaxDelay != 0 && c.Reconnect.MaxDelay < c.Reconnect.Delay {
		c.Reconnect.MaxDelay = c.Reconnect.Delay
	}
	if c.Reconnect.Jitter < 0 {
		c.Reconnect.Jitter = 0
	}
	if c.Reconnect.Jitter > 1 {
		c.Reconnect.Jitter = 1
	}
	if c.Reconnect.MaxAttempts < 0 {
		c.Reconnect.MaxAttempts = 0
	}

	if c.Session.DeliveryTimeout <= 0 {
		c.Session.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if c.Session.HistorySize <= 0 {
		c.Session.HistorySize = DefaultHistorySize
	}
	if c.Session.NetworkLogSize <= 0 {
		c.Session.NetworkLogSize = DefaultNetworkLogSize
	}

	if c.UI.Mode != "plain" {
		c.UI.Mode = "tui"
	}
}

// Sanitize repairs invalid or missing relay values in place.
func (c *RelayConfig) Sanitize() {
	if c.Port == "" {
		c.Port = ":8080"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.DefaultRoom == "" {
		c.DefaultRoom = DefaultRoom
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}
