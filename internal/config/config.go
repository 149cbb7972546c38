package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the status services
type Config struct {
	// Storage
	DatabasePath string
	DatabaseURL  string

	// HTTP
	Port           string
	AllowedOrigins []string

	// Engine
	Location                 *time.Location
	MaxRecurrenceOccurrences int
	DefaultBucketCount       int

	// Alert ingestion (GTFS-RT)
	GTFSAlertsURL     string
	AlertPollInterval time.Duration
	AlertLinePattern  *regexp.Regexp
	RetentionDays     int

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadDotEnv reads .env and then .env.local from dir, the latter overriding.
// Missing files are ignored.
func LoadDotEnv(dir string) {
	_ = godotenv.Load(dir + "/.env")
	_ = godotenv.Overload(dir + "/.env.local")
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath: getEnv("SQLITE_DATABASE", "data/status.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		Port:           getEnv("PORT", "8081"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),

		MaxRecurrenceOccurrences: getEnvInt("MAX_RECURRENCE_OCCURRENCES", 5000),
		DefaultBucketCount:       getEnvInt("DEFAULT_BUCKET_COUNT", 30),

		GTFSAlertsURL:     getEnv("GTFS_ALERTS_URL", ""),
		AlertPollInterval: time.Duration(getEnvInt("ALERT_POLL_INTERVAL", 60)) * time.Second,
		RetentionDays:     getEnvInt("RETENTION_DAYS", 730),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	loc, err := ParseUTCOffset(getEnv("OPERATING_UTC_OFFSET", "+08:00"))
	if err != nil {
		return nil, err
	}
	cfg.Location = loc

	if pattern := getEnv("ALERT_LINE_PATTERN", ""); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid ALERT_LINE_PATTERN: %w", err)
		}
		cfg.AlertLinePattern = re
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that cannot be expressed as defaults
func (c *Config) Validate() error {
	if c.MaxRecurrenceOccurrences < 1 {
		return fmt.Errorf("MAX_RECURRENCE_OCCURRENCES must be positive, got %d", c.MaxRecurrenceOccurrences)
	}
	if c.DefaultBucketCount < 1 {
		return fmt.Errorf("DEFAULT_BUCKET_COUNT must be positive, got %d", c.DefaultBucketCount)
	}
	if c.AlertPollInterval <= 0 {
		return fmt.Errorf("ALERT_POLL_INTERVAL must be positive, got %s", c.AlertPollInterval)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("RETENTION_DAYS must not be negative, got %d", c.RetentionDays)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// Retention returns how long ended incidents are kept; zero keeps them forever
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

var offsetPattern = regexp.MustCompile(`^([+-])(\d{2}):?(\d{2})$`)

// ParseUTCOffset turns "+08:00", "-0330" or "Z" into a fixed zone
func ParseUTCOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "Z" || strings.EqualFold(s, "UTC") {
		return time.UTC, nil
	}
	m := offsetPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("invalid OPERATING_UTC_OFFSET %q", s)
	}
	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	if hours > 14 || minutes > 59 {
		return nil, fmt.Errorf("OPERATING_UTC_OFFSET %q out of range", s)
	}
	offset := hours*3600 + minutes*60
	if m[1] == "-" {
		offset = -offset
	}
	return time.FixedZone("UTC"+m[1]+m[2]+":"+m[3], offset), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
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
