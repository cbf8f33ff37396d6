package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Khalti.BaseURL != "https://dev.khalti.com/api/v2" {
		t.Errorf("unexpected default gateway url %s", cfg.Khalti.BaseURL)
	}
	if cfg.Khalti.Timeout != 30*time.Second {
		t.Errorf("expected 30s gateway timeout, got %s", cfg.Khalti.Timeout)
	}
	if cfg.Session.CookieName != "fh_session" {
		t.Errorf("expected fh_session cookie, got %s", cfg.Session.CookieName)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected kafka to be disabled by default")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KHALTI_SECRET_KEY", "live_secret_key_abc")
	t.Setenv("KHALTI_TIMEOUT", "12s")
	t.Setenv("DB_NAME", "shop")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("SESSION_ATTEMPT_TTL", "10m")

	cfg := Load()

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Khalti.SecretKey != "live_secret_key_abc" {
		t.Errorf("expected secret key from env, got %q", cfg.Khalti.SecretKey)
	}
	if cfg.Khalti.Timeout != 12*time.Second {
		t.Errorf("expected 12s timeout, got %s", cfg.Khalti.Timeout)
	}
	if cfg.Database.DBName != "shop" {
		t.Errorf("expected db name shop, got %s", cfg.Database.DBName)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Session.AttemptTTL != 10*time.Minute {
		t.Errorf("expected 10m attempt ttl, got %s", cfg.Session.AttemptTTL)
	}
}

func TestWarnings_PublicURL(t *testing.T) {
	cfg := Load()
	if !containsPrefix(cfg.Warnings(), "server.public_url") {
		t.Errorf("expected a public url warning by default, got %v", cfg.Warnings())
	}

	t.Setenv("SERVER_PUBLIC_URL", "https://shop.example.com")
	t.Setenv("SESSION_COOKIE_SECURE", "true")

	cfg = Load()
	if cfg.Server.PublicURL != "https://shop.example.com" {
		t.Errorf("expected public url from env, got %q", cfg.Server.PublicURL)
	}
	if w := cfg.Warnings(); len(w) != 0 {
		t.Errorf("expected no warnings, got %v", w)
	}
}

func containsPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
