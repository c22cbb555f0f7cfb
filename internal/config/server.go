package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DevSessionSecret is the built-in session secret. It is only suitable for
// local development.
const DevSessionSecret = "CHANGE_ME_FRONTEND_SECRET"

// ProxyConfig holds configuration for the chatfront server.
type ProxyConfig struct {
	Port         int      `yaml:"port"`
	MetricsAddr  string   `yaml:"metrics_addr"`
	BackendURL   string   `yaml:"backend_url"`
	DefaultModel string   `yaml:"default_model"`
	RedisAddr    string   `yaml:"redis_addr"`
	LogLevel     string   `yaml:"log_level"`
	ConfigFile   string   `yaml:"-"`
	EnvFile      string   `yaml:"-"`
	Origins      []string `yaml:"allowed_origins"`

	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	CookieName    string        `yaml:"session_cookie"`
	CookieSecure  bool          `yaml:"session_cookie_secure"`

	HealthTimeout   time.Duration `yaml:"health_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	HistoryTimeout  time.Duration `yaml:"history_timeout"`
	GenerateTimeout time.Duration `yaml:"generate_timeout"`
	StreamTimeout   time.Duration `yaml:"stream_timeout"`
	DrainTimeout    time.Duration `yaml:"drain_timeout"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ProxyConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 5001
	}
	if c.BackendURL == "" {
		c.BackendURL = "http://localhost:8000"
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "Qwen3-4B-Instruct-2507-4bit"
	}
	if c.SessionSecret == "" {
		c.SessionSecret = DevSessionSecret
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.CookieName == "" {
		c.CookieName = "chatfront_session"
	}
	if c.HealthTimeout == 0 {
		c.HealthTimeout = 30 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.HistoryTimeout == 0 {
		c.HistoryTimeout = 15 * time.Second
	}
	if c.GenerateTimeout == 0 {
		c.GenerateTimeout = 60 * time.Second
	}
	if c.StreamTimeout == 0 {
		c.StreamTimeout = 300 * time.Second
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 5 * time.Minute
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("server.yaml")
	}
	if c.EnvFile == "" {
		c.EnvFile = ".env"
	}
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set in the environment win. A missing file is not an error.
func (c *ProxyConfig) LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ProxyConfig) ApplyEnv() {
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := GetEnv("METRICS_PORT", ""); v != "" {
		if strings.Contains(v, ":") {
			c.MetricsAddr = v
		} else {
			c.MetricsAddr = ":" + v
		}
	}
	if v := GetEnv("BACKEND_URL", ""); v != "" {
		c.BackendURL = v
	}
	if v := GetEnv("DEFAULT_MODEL", ""); v != "" {
		c.DefaultModel = v
	}
	if v := GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := GetEnv("SESSION_SECRET", GetEnv("FLASK_SECRET_KEY", "")); v != "" {
		c.SessionSecret = v
	}
	if v := GetEnv("SESSION_COOKIE", ""); v != "" {
		c.CookieName = v
	}
	if v := GetEnv("SESSION_COOKIE_SECURE", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.CookieSecure = b
		}
	}
	if v := GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.Origins = splitComma(v)
	}
	envDuration("SESSION_TTL", &c.SessionTTL)
	envDuration("HEALTH_TIMEOUT", &c.HealthTimeout)
	envDuration("REQUEST_TIMEOUT", &c.RequestTimeout)
	envDuration("HISTORY_TIMEOUT", &c.HistoryTimeout)
	envDuration("GENERATE_TIMEOUT", &c.GenerateTimeout)
	envDuration("STREAM_TIMEOUT", &c.StreamTimeout)
	envDuration("DRAIN_TIMEOUT", &c.DrainTimeout)
}

// BindFlags binds command line flags using the current config values as
// defaults. Call flag.Parse on fs afterwards.
func (c *ProxyConfig) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port")
	fs.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port; defaults to the value of --port")
	fs.StringVar(&c.BackendURL, "backend-url", c.BackendURL, "base URL of the backend service")
	fs.StringVar(&c.DefaultModel, "default-model", c.DefaultModel, "model offered when the backend lists none")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for sessions; empty keeps sessions in memory")
	fs.StringVar(&c.SessionSecret, "session-secret", c.SessionSecret, "secret used to sign session cookies")
	fs.StringVar(&c.CookieName, "session-cookie", c.CookieName, "session cookie name")
	fs.BoolVar(&c.CookieSecure, "session-cookie-secure", c.CookieSecure, "mark the session cookie Secure")
	fs.DurationVar(&c.SessionTTL, "session-ttl", c.SessionTTL, "idle lifetime of a session")
	fs.DurationVar(&c.HealthTimeout, "health-timeout", c.HealthTimeout, "backend health check timeout")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "timeout for short backend calls")
	fs.DurationVar(&c.HistoryTimeout, "history-timeout", c.HistoryTimeout, "timeout for chat history calls")
	fs.DurationVar(&c.GenerateTimeout, "generate-timeout", c.GenerateTimeout, "timeout for non-streaming generation")
	fs.DurationVar(&c.StreamTimeout, "stream-timeout", c.StreamTimeout, "ceiling for a streaming generation")
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for open streams on shutdown (-1 to wait indefinitely, 0 to exit immediately)")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.Origins = splitComma(v)
		return nil
	})
}

// LoadFile populates the config from a YAML file.
func (c *ProxyConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// Validate reports configuration that cannot work.
func (c *ProxyConfig) Validate() error {
	if c.BackendURL == "" {
		return errors.New("backend url is required")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend url %q", c.BackendURL)
	}
	if c.SessionSecret == "" {
		return errors.New("session secret is required")
	}
	for name, d := range map[string]time.Duration{
		"health":   c.HealthTimeout,
		"request":  c.RequestTimeout,
		"history":  c.HistoryTimeout,
		"generate": c.GenerateTimeout,
		"stream":   c.StreamTimeout,
		"session":  c.SessionTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s timeout must be positive", name)
		}
	}
	return nil
}

// SharedMetricsPort reports whether /metrics is served by the main listener.
func (c *ProxyConfig) SharedMetricsPort() bool {
	return c.MetricsAddr == "" || c.MetricsAddr == fmt.Sprintf(":%d", c.Port)
}

// UsesDevSecret reports whether the built-in development secret is in use.
func (c *ProxyConfig) UsesDevSecret() bool { return c.SessionSecret == DevSessionSecret }

// envDuration accepts either a Go duration ("90s") or a number of seconds.
func envDuration(key string, dst *time.Duration) {
	v := GetEnv(key, "")
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(f * float64(time.Second))
	}
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
