package transport

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Tyrowin/gochat/internal/config"
)

// Endpoint resolves the WebSocket URL to dial. An explicit URL wins;
// otherwise the endpoint is derived from the page origin, using wss for
// https origins and ws for everything else.
func Endpoint(cfg config.ServerConfig) (string, error) {
	if cfg.URL != "" {
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return "", fmt.Errorf("parse server url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return "", fmt.Errorf("server url %q: scheme must be ws or wss", cfg.URL)
		}
		if u.Host == "" {
			return "", fmt.Errorf("server url %q: missing host", cfg.URL)
		}
		return u.String(), nil
	}

	if cfg.Origin == "" {
		return "", fmt.Errorf("neither server url nor origin configured")
	}

	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	if origin.Host == "" {
		return "", fmt.Errorf("origin %q: missing host", cfg.Origin)
	}

	scheme := "ws"
	if strings.EqualFold(origin.Scheme, "https") {
		scheme = "wss"
	}

	path := cfg.Path
	if path == "" {
		path = config.DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return (&url.URL{Scheme: scheme, Host: origin.Host, Path: path}).String(), nil
}

// OriginFor returns the Origin header to present for endpoint. A configured
// origin is used as is; otherwise it mirrors the endpoint's host.
func OriginFor(cfg config.ServerConfig, endpoint string) string {
	if cfg.Origin != "" {
		return cfg.Origin
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}
