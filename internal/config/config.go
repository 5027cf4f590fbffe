package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `validate:"required"`
	StoreDriver string `validate:"oneof=postgres sqlite memory"`
	DatabaseURL string `validate:"required_if=StoreDriver postgres"`
	SQLitePath  string `validate:"required_if=StoreDriver sqlite"`
	DBMaxConns  int    `validate:"gte=0"`

	ExpiryInterval time.Duration

	RateLimitPerMinute         int
	RateLimitBurst             int
	CustomerRateLimitPerMinute int
	CustomerRateLimitBurst     int
	TrustProxy                 bool
	RedisAddr                  string
	RedisRateLimitPerMinute    int
	RedisFailOpen              bool

	KafkaBrokers string
	KafkaTopic   string `validate:"required_with=KafkaBrokers"`

	MailProvider     string `validate:"omitempty,oneof=log stub noop fail webhook"`
	MailWebhookURL   string `validate:"required_if=MailProvider webhook"`
	MailWebhookToken string
	MailTemplate     string

	StaffToken string
	LogLevel   string `validate:"omitempty,oneof=trace debug info warn error"`
	LogFormat  string `validate:"omitempty,oneof=json console"`

	Branch Branch
}

// Load reads the environment, after merging an optional .env file, and the
// optional branch file named by BRANCH_CONFIG.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	cfg := Config{
		Port:                       port,
		StoreDriver:                readString("STORE_DRIVER", "postgres"),
		DatabaseURL:                os.Getenv("DB_DSN"),
		SQLitePath:                 readString("SQLITE_PATH", "bookings.db"),
		DBMaxConns:                 readInt("DB_MAX_CONNS", 10),
		ExpiryInterval:             readDurationSeconds("EXPIRY_SCAN_INTERVAL_SECONDS", 60),
		RateLimitPerMinute:         readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:             readInt("RATE_LIMIT_BURST", 30),
		CustomerRateLimitPerMinute: readInt("CUSTOMER_RATE_LIMIT_PER_MIN", 30),
		CustomerRateLimitBurst:     readInt("CUSTOMER_RATE_LIMIT_BURST", 10),
		TrustProxy:                 readBool("TRUST_PROXY", false),
		RedisAddr:                  strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisRateLimitPerMinute:    readInt("REDIS_RATE_LIMIT_PER_MIN", 300),
		RedisFailOpen:              readBool("REDIS_RATE_LIMIT_FAIL_OPEN", true),
		KafkaBrokers:               strings.TrimSpace(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:                 readString("KAFKA_TOPIC", "booking-events"),
		MailProvider:               readString("MAIL_PROVIDER", "log"),
		MailWebhookURL:             strings.TrimSpace(os.Getenv("MAIL_WEBHOOK_URL")),
		MailWebhookToken:           os.Getenv("MAIL_WEBHOOK_TOKEN"),
		MailTemplate:               os.Getenv("MAIL_TEMPLATE"),
		StaffToken:                 strings.TrimSpace(os.Getenv("STAFF_API_TOKEN")),
		LogLevel:                   strings.ToLower(readString("LOG_LEVEL", "info")),
		LogFormat:                  strings.ToLower(readString("LOG_FORMAT", "json")),
	}

	branch := DefaultBranch()
	if path := strings.TrimSpace(os.Getenv("BRANCH_CONFIG")); path != "" {
		loaded, err := LoadBranch(path)
		if err != nil {
			return Config{}, err
		}
		branch = loaded
	}
	if minutes := readInt("MINUTES_PER_CUSTOMER", 0); minutes > 0 {
		branch.MinutesPerCustomer = minutes
	}
	cfg.Branch = branch

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func readString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
