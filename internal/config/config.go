package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "SAMEIE_"

// Config holds all application configuration.
type Config struct {
	HTTPAddr  string
	GRPCAddr  string
	PublicURL string

	PostgresDSN string
	RedisURL    string
	LockTTL     time.Duration
	LockPrefix  string

	AuthSecret   string
	AdminEmails  []string
	RoleCacheTTL time.Duration
	RoleCacheMax int

	Approval ApprovalConfig
	SMTP     SMTPConfig

	RateBurst  int
	RatePerSec int
	LogLevel   string
}

// ApprovalConfig tunes the protocol approval workflow.
type ApprovalConfig struct {
	// DocumentHosts, when set, replaces DocumentURLPattern with "https://<host>/..." for each host.
	DocumentHosts      []string
	DocumentURLPattern string
	TokenTTL           time.Duration
	ReminderSchedule   string
	ReminderAfter      time.Duration
}

// SMTPConfig configures outbound mail. An empty Host selects the logging transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Load reads configuration from the environment, after loading .env when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:     getEnv("GRPC_ADDR", ""),
		PublicURL:    strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
		PostgresDSN:  getEnv("PG_DSN", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		LockTTL:      getEnvDuration("LOCK_TTL", 30*time.Second),
		LockPrefix:   getEnv("LOCK_PREFIX", "sameie:lock:"),
		AuthSecret:   getEnv("AUTH_SECRET", ""),
		AdminEmails:  SplitList(getEnv("ADMIN_EMAILS", "")),
		RoleCacheTTL: getEnvDuration("ROLE_CACHE_TTL", 2*time.Minute),
		RoleCacheMax: getEnvInt("ROLE_CACHE_SIZE", 256),
		Approval: ApprovalConfig{
			DocumentHosts:      SplitList(getEnv("DOC_HOSTS", "")),
			DocumentURLPattern: getEnv("DOC_URL_PATTERN", `^https://docs\.google\.com/document/`),
			TokenTTL:           getEnvDuration("TOKEN_TTL", 30*24*time.Hour),
			ReminderSchedule:   getEnv("REMINDER_SCHEDULE", ""),
			ReminderAfter:      getEnvDuration("REMINDER_AFTER", 72*time.Hour),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "styret@sameieportalen.no"),
		},
		RateBurst:  getEnvInt("RATE_BURST", 20),
		RatePerSec: getEnvInt("RATE_PER_SEC", 10),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.RoleCacheTTL < 0 {
		return errors.New("role cache ttl must not be negative")
	}
	if c.RoleCacheMax <= 0 {
		return errors.New("role cache size must be positive")
	}
	if c.Approval.TokenTTL < 0 {
		return errors.New("token ttl must not be negative")
	}
	if c.LockTTL <= 0 {
		return errors.New("lock ttl must be positive")
	}
	if _, err := c.Approval.URLPattern(); err != nil {
		return fmt.Errorf("invalid document url pattern: %w", err)
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		return errors.New("rate limit values must be positive")
	}
	if c.SMTP.Host != "" && (c.SMTP.Port <= 0 || c.SMTP.Port > 65535) {
		return fmt.Errorf("invalid smtp port %d", c.SMTP.Port)
	}
	return nil
}

// URLPattern returns the pattern document links must match.
func (c ApprovalConfig) URLPattern() (*regexp.Regexp, error) {
	if len(c.DocumentHosts) == 0 {
		return regexp.Compile(c.DocumentURLPattern)
	}
	hosts := make([]string, len(c.DocumentHosts))
	for i, h := range c.DocumentHosts {
		hosts[i] = regexp.QuoteMeta(strings.ToLower(h))
	}
	return regexp.Compile(`^https://(` + strings.Join(hosts, "|") + `)/`)
}

// SplitList splits an admin allow-list style value on commas, semicolons and whitespace.
func SplitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n', '\r':
			return true
		}
		return false
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
