// Package config loads process configuration from the environment, after
// reading a .env file when one is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/wage-engine/payroll"
)

// Primary backends.
const (
	PrimarySQLite   = "sqlite"
	PrimaryPostgres = "postgres"
	PrimaryNone     = "none"
)

// Blob backends.
const (
	BlobFS       = "fs"
	BlobDynamoDB = "dynamodb"
	BlobMemory   = "memory"
)

type Config struct {
	HTTPPort    string
	LogLevel    logrus.Level
	CORSOrigins []string

	PrimaryBackend string
	SQLitePath     string
	SQLiteMigrate  bool
	DatabaseURL    string

	BlobBackend      string
	BlobDir          string
	DynamoDBTable    string
	DynamoDBEndpoint string
	AWSRegion        string

	SourcesDBPath string
	RatesFile     string

	Overtime        payroll.OvertimePolicy
	CurrencyPlaces  int32
	TemplateVersion string
	LifecycleStrict bool

	SchedulerEnabled  bool
	SchedulerInterval time.Duration
}

// Load reads .env (a missing file is fine) and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		LogLevel:    level,
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),

		PrimaryBackend: strings.ToLower(getEnv("PRIMARY_BACKEND", PrimarySQLite)),
		SQLitePath:     getEnv("SQLITE_PATH", "./wages.db"),
		SQLiteMigrate:  getEnvAsBool("SQLITE_MIGRATE", true),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		BlobBackend:      strings.ToLower(getEnv("BLOB_BACKEND", BlobFS)),
		BlobDir:          getEnv("BLOB_DIR", "./snapshots"),
		DynamoDBTable:    getEnv("DYNAMODB_TABLE", ""),
		DynamoDBEndpoint: getEnv("DYNAMODB_ENDPOINT", ""),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),

		SourcesDBPath: getEnv("SOURCES_DB_PATH", "./sources.db"),
		RatesFile:     getEnv("RATES_FILE", ""),

		CurrencyPlaces:  int32(getEnvAsInt("CURRENCY_PLACES", 0)),
		TemplateVersion: getEnv("TEMPLATE_VERSION", "v1"),
		LifecycleStrict: getEnvAsBool("LIFECYCLE_STRICT", true),

		SchedulerEnabled:  getEnvAsBool("SCHEDULER_ENABLED", false),
		SchedulerInterval: getEnvAsDuration("SCHEDULER_INTERVAL", time.Hour),
	}

	def := payroll.DefaultOvertimePolicy()
	cfg.Overtime = payroll.OvertimePolicy{
		ThresholdHours:   getEnvAsDecimal("OVERTIME_THRESHOLD_HOURS", def.ThresholdHours),
		Multiplier:       getEnvAsDecimal("OVERTIME_MULTIPLIER", def.Multiplier),
		StandardDayHours: getEnvAsDecimal("STANDARD_DAY_HOURS", def.StandardDayHours),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.PrimaryBackend {
	case PrimarySQLite, PrimaryNone:
	case PrimaryPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown PRIMARY_BACKEND %q", c.PrimaryBackend)
	}
	switch c.BlobBackend {
	case BlobFS, BlobDynamoDB, BlobMemory:
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend)
	}
	if c.SchedulerInterval <= 0 {
		return errors.New("SCHEDULER_INTERVAL must be positive")
	}
	if c.CurrencyPlaces < 0 {
		return errors.New("CURRENCY_PLACES must not be negative")
	}
	return c.Overtime.Validate()
}

// EngineConfig maps the process settings onto the engine's.
func (c *Config) EngineConfig(logger logrus.FieldLogger) payroll.EngineConfig {
	return payroll.EngineConfig{
		Overtime:        c.Overtime,
		CurrencyPlaces:  c.CurrencyPlaces,
		TemplateVersion: c.TemplateVersion,
		StrictLifecycle: c.LifecycleStrict,
		Logger:          logger,
	}
}

func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	if val, err := strconv.ParseBool(getEnv(name, "")); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsInt(name string, defaultVal int64) int64 {
	if val, err := strconv.Atoi(getEnv(name, "")); err == nil {
		return int64(val)
	}
	return defaultVal
}

func getEnvAsDecimal(name string, defaultVal decimal.Decimal) decimal.Decimal {
	if val, err := decimal.NewFromString(getEnv(name, "")); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	if val, err := time.ParseDuration(getEnv(name, "")); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsList(name string, defaultVal []string) []string {
	raw := strings.TrimSpace(getEnv(name, ""))
	if raw == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
