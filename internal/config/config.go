package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Khalti   KhaltiConfig
	Session  SessionConfig
	NewRelic NewRelicConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PublicURL overrides the scheme and host derived from incoming requests
	// when building gateway return URLs (e.g. behind a proxy).
	PublicURL string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds Kafka producer configuration.
type KafkaConfig struct {
	Brokers  []string
	ClientID string
	Enabled  bool
}

// KhaltiConfig holds payment gateway configuration.
type KhaltiConfig struct {
	BaseURL          string
	SecretKey        string
	Timeout          time.Duration
	MerchantUsername string
	CallbackPath     string
}

// SessionConfig holds browser session and payment attempt settings.
type SessionConfig struct {
	CookieName   string
	CookieSecure bool
	AttemptTTL   time.Duration
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// Load loads configuration from environment variables, optionally overlaid
// on a config.yaml in the working directory.
func Load() *Config {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("failed to read config file: %v", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		Server: ServerConfig{
			Port:         v.GetString("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			PublicURL:    v.GetString("server.public_url"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("db.host"),
			Port:     v.GetString("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			DBName:   v.GetString("db.name"),
			SSLMode:  v.GetString("db.sslmode"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Brokers:  splitList(v.GetString("kafka.brokers")),
			ClientID: v.GetString("kafka.client_id"),
			Enabled:  v.GetBool("kafka.enabled"),
		},
		Khalti: KhaltiConfig{
			BaseURL:          v.GetString("khalti.base_url"),
			SecretKey:        v.GetString("khalti.secret_key"),
			Timeout:          v.GetDuration("khalti.timeout"),
			MerchantUsername: v.GetString("khalti.merchant_username"),
			CallbackPath:     v.GetString("khalti.callback_path"),
		},
		Session: SessionConfig{
			CookieName:   v.GetString("session.cookie_name"),
			CookieSecure: v.GetBool("session.cookie_secure"),
			AttemptTTL:   v.GetDuration("session.attempt_ttl"),
		},
		NewRelic: NewRelicConfig{
			AppName:    v.GetString("new_relic.app_name"),
			LicenseKey: v.GetString("new_relic.license_key"),
			Enabled:    v.GetBool("new_relic.enabled"),
		},
	}
}

// Warnings lists settings that are unsafe outside local development.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Server.PublicURL == "" {
		warnings = append(warnings, "server.public_url is not set, gateway return URLs are built from the request Host header")
	}
	if !c.Session.CookieSecure {
		warnings = append(warnings, "session.cookie_secure is off, session cookies are sent over plain HTTP")
	}
	return warnings
}

// setDefaults registers every key so AutomaticEnv can resolve it: the key
// server.port is read from SERVER_PORT, khalti.secret_key from
// KHALTI_SECRET_KEY, and so on.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 40*time.Second)
	v.SetDefault("server.public_url", "")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "fashionhub")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.client_id", "fashionhub-payments")
	v.SetDefault("kafka.enabled", false)

	v.SetDefault("khalti.base_url", "https://dev.khalti.com/api/v2")
	v.SetDefault("khalti.secret_key", "")
	v.SetDefault("khalti.timeout", 30*time.Second)
	v.SetDefault("khalti.merchant_username", "fashionhub")
	v.SetDefault("khalti.callback_path", "/payments/khalti/callback")

	v.SetDefault("session.cookie_name", "fh_session")
	v.SetDefault("session.cookie_secure", false)
	v.SetDefault("session.attempt_ttl", 30*time.Minute)

	v.SetDefault("new_relic.app_name", "fashionhub-payments")
	v.SetDefault("new_relic.license_key", "")
	v.SetDefault("new_relic.enabled", false)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
