package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Remote API
	RemoteAPIURL   string
	RequestTimeout time.Duration

	// Token Refresh
	RefreshLeeway time.Duration

	// Session persistence
	StateDir string

	// Rate Limit
	RateLimitGeneral int
	RateLimitLogin   int

	// Server
	ServerPort string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Response sanitization
	SanitizeEnabled bool
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.RemoteAPIURL = os.Getenv("REMOTE_API_URL")
	if cfg.RemoteAPIURL == "" {
		missing = append(missing, "REMOTE_API_URL")
	}

	cfg.CORSAllowedOrigin = os.Getenv("DASHBOARD_ORIGIN")
	if cfg.CORSAllowedOrigin == "" {
		missing = append(missing, "DASHBOARD_ORIGIN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if _, err := url.ParseRequestURI(cfg.RemoteAPIURL); err != nil {
		return nil, fmt.Errorf("REMOTE_API_URL is not a valid URL: %w", err)
	}
	if !strings.HasPrefix(cfg.RemoteAPIURL, "http://") && !strings.HasPrefix(cfg.RemoteAPIURL, "https://") {
		return nil, fmt.Errorf("REMOTE_API_URL must use http or https scheme: %s", cfg.RemoteAPIURL)
	}

	// Optional fields with defaults
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second)
	cfg.RefreshLeeway = getEnvDuration("REFRESH_LEEWAY", 30*time.Second)
	cfg.StateDir = getEnvString("STATE_DIR", defaultStateDir())
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.CORSAllowedOrigin, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.SanitizeEnabled = getEnvBool("SANITIZE_FIELDS", true)

	return cfg, nil
}

// defaultStateDir はセッション永続化の既定ディレクトリを返す。
func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".planboard"
	}
	return home + "/.planboard"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
