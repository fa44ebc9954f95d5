// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transports accepted by HIKYAKU_TRANSPORT.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Transport    string // "http" (streamable + SSE) or "stdio".
	BaseURL      string // Public URL the SSE transport advertises for /message.

	// SMTP settings. An empty host selects the log-only dev transport.
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPTimeout  time.Duration
	DefaultFrom  string

	// Delivery log. Empty disables persistence.
	DatabaseURL       string
	DeliveryRetention time.Duration

	// Auth. An empty path disables bearer-token auth.
	JWTPublicKeyPath string

	// Rate limiting.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var cfg Config
	var err error

	cfg.Port, err = envInt("HIKYAKU_PORT", 8080)
	collect(err)
	cfg.ReadTimeout, err = envDuration("HIKYAKU_READ_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.WriteTimeout, err = envDuration("HIKYAKU_WRITE_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.Transport = strings.ToLower(envStr("HIKYAKU_TRANSPORT", TransportHTTP))
	cfg.BaseURL = envStr("HIKYAKU_BASE_URL", "http://localhost:8080")

	cfg.SMTPHost = envStr("HIKYAKU_SMTP_HOST", "")
	cfg.SMTPPort, err = envInt("HIKYAKU_SMTP_PORT", 587)
	collect(err)
	cfg.SMTPUser = envStr("HIKYAKU_SMTP_USER", "")
	cfg.SMTPPassword = envStr("HIKYAKU_SMTP_PASSWORD", "")
	cfg.SMTPTimeout, err = envDuration("HIKYAKU_SMTP_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.DefaultFrom = envStr("HIKYAKU_DEFAULT_FROM", "noreply@hikyaku.dev")

	cfg.DatabaseURL = envStrAllowEmpty("DATABASE_URL", "sqlite://hikyaku.db")
	cfg.DeliveryRetention, err = envDuration("HIKYAKU_DELIVERY_RETENTION", 30*24*time.Hour)
	collect(err)

	cfg.JWTPublicKeyPath = envStr("HIKYAKU_JWT_PUBLIC_KEY", "")

	cfg.RateLimitEnabled, err = envBool("HIKYAKU_RATE_LIMIT_ENABLED", true)
	collect(err)
	cfg.RateLimitRPS, err = envFloat("HIKYAKU_RATE_LIMIT_RPS", 1)
	collect(err)
	cfg.RateLimitBurst, err = envInt("HIKYAKU_RATE_LIMIT_BURST", 5)
	collect(err)

	cfg.OTELEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.OTELInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", false)
	collect(err)
	cfg.ServiceName = envStr("OTEL_SERVICE_NAME", "hikyaku")

	cfg.LogLevel = envStr("HIKYAKU_LOG_LEVEL", "info")
	maxBody, err := envInt("HIKYAKU_MAX_REQUEST_BODY_BYTES", 1*1024*1024) // 1 MB default
	collect(err)
	cfg.MaxRequestBodyBytes = int64(maxBody)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the loaded values are usable together.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("HIKYAKU_PORT must be between 1 and 65535"))
	}
	if c.Transport != TransportHTTP && c.Transport != TransportStdio {
		errs = append(errs, fmt.Errorf("HIKYAKU_TRANSPORT must be %q or %q, got %q", TransportHTTP, TransportStdio, c.Transport))
	}
	if c.Transport == TransportHTTP {
		if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("HIKYAKU_BASE_URL=%q is not an absolute URL", c.BaseURL))
		}
	}
	if c.SMTPHost != "" && (c.SMTPPort <= 0 || c.SMTPPort > 65535) {
		errs = append(errs, fmt.Errorf("HIKYAKU_SMTP_PORT must be between 1 and 65535"))
	}
	if c.SMTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HIKYAKU_SMTP_TIMEOUT must be positive"))
	}
	if c.DeliveryRetention < 0 {
		errs = append(errs, fmt.Errorf("HIKYAKU_DELIVERY_RETENTION must not be negative"))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		errs = append(errs, fmt.Errorf("HIKYAKU_RATE_LIMIT_RPS and HIKYAKU_RATE_LIMIT_BURST must be positive"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("HIKYAKU_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SMTPConfigured reports whether a real relay was configured.
func (c Config) SMTPConfigured() bool { return c.SMTPHost != "" }

// AuthEnabled reports whether bearer-token auth is required.
func (c Config) AuthEnabled() bool { return c.JWTPublicKeyPath != "" }

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envStrAllowEmpty distinguishes an unset variable from one set to "".
func envStrAllowEmpty(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
