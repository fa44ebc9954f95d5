package config

import (
	"strings"
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvFloatInvalid(t *testing.T) {
	t.Setenv("TEST_FLOAT_BAD", "fast")
	_, err := envFloat("TEST_FLOAT_BAD", 1)
	if err == nil {
		t.Fatal("expected error for non-numeric value, got nil")
	}
	if got := err.Error(); got != `TEST_FLOAT_BAD="fast" is not a valid number` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidPort(t *testing.T) {
	t.Setenv("HIKYAKU_PORT", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid HIKYAKU_PORT")
	}
	// Error should mention the variable name and value.
	if got := err.Error(); !strings.Contains(got, "HIKYAKU_PORT") || !strings.Contains(got, "abc") {
		t.Fatalf("error should mention HIKYAKU_PORT and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("HIKYAKU_PORT", "abc")
	t.Setenv("HIKYAKU_SMTP_PORT", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !strings.Contains(got, "HIKYAKU_PORT") {
		t.Fatalf("error should mention HIKYAKU_PORT, got: %s", got)
	}
	if !strings.Contains(got, "HIKYAKU_SMTP_PORT") {
		t.Fatalf("error should mention HIKYAKU_SMTP_PORT, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	// With no env vars set, Load should succeed using all defaults.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.Transport != TransportHTTP {
		t.Fatalf("expected default transport http, got %q", cfg.Transport)
	}
	if cfg.DatabaseURL != "sqlite://hikyaku.db" {
		t.Fatalf("unexpected default DATABASE_URL %q", cfg.DatabaseURL)
	}
	if cfg.DeliveryRetention != 720*time.Hour {
		t.Fatalf("expected 720h retention, got %s", cfg.DeliveryRetention)
	}
	if cfg.SMTPConfigured() || cfg.AuthEnabled() {
		t.Fatal("SMTP and auth should be off by default")
	}
}

func TestLoadEmptyDatabaseURLDisablesLog(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("expected empty DATABASE_URL to be kept, got %q", cfg.DatabaseURL)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:                8080,
			Transport:           TransportHTTP,
			BaseURL:             "http://localhost:8080",
			SMTPTimeout:         time.Second,
			RateLimitEnabled:    true,
			RateLimitRPS:        1,
			RateLimitBurst:      5,
			MaxRequestBodyBytes: 1024,
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"ok", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Port = 70000 }, "HIKYAKU_PORT"},
		{"unknown transport", func(c *Config) { c.Transport = "carrier-pigeon" }, "HIKYAKU_TRANSPORT"},
		{"relative base url", func(c *Config) { c.BaseURL = "/mcp" }, "HIKYAKU_BASE_URL"},
		{"stdio ignores base url", func(c *Config) { c.Transport = TransportStdio; c.BaseURL = "" }, ""},
		{"zero smtp timeout", func(c *Config) { c.SMTPTimeout = 0 }, "HIKYAKU_SMTP_TIMEOUT"},
		{"negative retention", func(c *Config) { c.DeliveryRetention = -time.Hour }, "HIKYAKU_DELIVERY_RETENTION"},
		{"zero burst", func(c *Config) { c.RateLimitBurst = 0 }, "HIKYAKU_RATE_LIMIT"},
		{"zero burst with limiter off", func(c *Config) { c.RateLimitEnabled = false; c.RateLimitBurst = 0 }, ""},
		{"zero body limit", func(c *Config) { c.MaxRequestBodyBytes = 0 }, "HIKYAKU_MAX_REQUEST_BODY_BYTES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.substr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Fatalf("expected error mentioning %s, got %v", tt.substr, err)
			}
		})
	}
}
