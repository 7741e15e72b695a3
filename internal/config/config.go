package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Session backends accepted by SESSION_BACKEND.
const (
	SessionBackendMemory   = "memory"
	SessionBackendRedis    = "redis"
	SessionBackendDynamoDB = "dynamodb"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string
	Timezone string

	RosterPath string

	BookingWindowDays  int
	SlotWidth          time.Duration
	PMCutoffHour       int
	FuzzyLowThreshold  int
	FuzzyHighThreshold int
	MaxEmptyRetries    int
	PostBookingMenu    bool

	SessionBackend string
	SessionTTL     time.Duration
	SessionTable   string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AuditLogPath  string
	AuditS3Bucket string

	QABaseURL string
	QAAPIKey  string
	QATimeout time.Duration

	GeminiAPIKey  string
	GeminiModelID string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	SMSCountryCode   string

	BookingEventsQueueURL string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Timezone: getEnv("TIMEZONE", "Asia/Kolkata"),

		RosterPath: getEnv("ROSTER_PATH", "roster.yaml"),

		BookingWindowDays:  getEnvAsInt("BOOKING_WINDOW_DAYS", 61),
		SlotWidth:          getEnvAsDuration("SLOT_WIDTH", 30*time.Minute),
		PMCutoffHour:       getEnvAsInt("PM_CUTOFF_HOUR", 8),
		FuzzyLowThreshold:  getEnvAsInt("FUZZY_LOW_THRESHOLD", 60),
		FuzzyHighThreshold: getEnvAsInt("FUZZY_HIGH_THRESHOLD", 85),
		MaxEmptyRetries:    getEnvAsInt("MAX_EMPTY_RETRIES", 2),
		PostBookingMenu:    getEnvAsBool("POST_BOOKING_MENU", true),

		SessionBackend: strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", SessionBackendMemory))),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		SessionTable:   getEnv("SESSION_TABLE", "call_sessions"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AuditLogPath:  getEnv("AUDIT_LOG_PATH", "bookings.jsonl"),
		AuditS3Bucket: getEnv("AUDIT_S3_BUCKET", ""),

		QABaseURL: getEnv("QA_BASE_URL", ""),
		QAAPIKey:  getEnv("QA_API_KEY", ""),
		QATimeout: getEnvAsDuration("QA_TIMEOUT", 10*time.Second),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		SMSCountryCode:   getEnv("SMS_COUNTRY_CODE", "+91"),

		BookingEventsQueueURL: getEnv("BOOKING_EVENTS_QUEUE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.BookingWindowDays < 1 {
		errs = append(errs, fmt.Errorf("BOOKING_WINDOW_DAYS must be >= 1, got %d", c.BookingWindowDays))
	}
	if c.SlotWidth <= 0 {
		errs = append(errs, fmt.Errorf("SLOT_WIDTH must be positive, got %s", c.SlotWidth))
	}
	if c.PMCutoffHour < 0 || c.PMCutoffHour > 12 {
		errs = append(errs, fmt.Errorf("PM_CUTOFF_HOUR must be within 0..12, got %d", c.PMCutoffHour))
	}
	if c.FuzzyLowThreshold < 0 || c.FuzzyHighThreshold > 100 || c.FuzzyLowThreshold > c.FuzzyHighThreshold {
		errs = append(errs, fmt.Errorf("fuzzy thresholds must satisfy 0 <= low <= high <= 100, got %d/%d",
			c.FuzzyLowThreshold, c.FuzzyHighThreshold))
	}
	if c.MaxEmptyRetries < 1 {
		errs = append(errs, fmt.Errorf("MAX_EMPTY_RETRIES must be >= 1, got %d", c.MaxEmptyRetries))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err))
	}
	switch c.SessionBackend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when SESSION_BACKEND=redis"))
		}
	case SessionBackendDynamoDB:
		if strings.TrimSpace(c.SessionTable) == "" {
			errs = append(errs, errors.New("SESSION_TABLE is required when SESSION_BACKEND=dynamodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_BACKEND %q is not one of memory, redis, dynamodb", c.SessionBackend))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL))
	}
	if strings.TrimSpace(c.RosterPath) == "" {
		errs = append(errs, errors.New("ROSTER_PATH is required"))
	}
	return errors.Join(errs...)
}

// Location returns the hospital timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
