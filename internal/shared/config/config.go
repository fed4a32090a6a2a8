package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	KurrentDB    KurrentDBConfig
	Auth         AuthConfig
	Booking      BookingConfig
	Notification NotificationConfig
	HIS          HISConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RedisConfig holds connection settings for the booking lock.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	// LockTTL bounds how long a booking request may hold a doctor lock
	LockTTL time.Duration
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB),
// which backs the domain event bus and the audit trail.
type KurrentDBConfig struct {
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

// BookingConfig holds scheduling policy knobs.
type BookingConfig struct {
	// SlotGranularity is the step used by the open-window slot search
	SlotGranularity time.Duration
	// SuggestionHorizonDays bounds how far ahead the auto-assignment
	// engine projects a nearest-availability suggestion
	SuggestionHorizonDays int
}

type NotificationConfig struct {
	Workers    int
	BufferSize int
	FromEmail  string
	SMTPHost   string
	SMTPPort   int
}

// HISConfig holds settings for the legacy hospital-information-system
// import adapter (MSSQL source).
type HISConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	PollInterval time.Duration
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "meridian"),
			Password: getEnv("DB_PASSWORD", "meridian"),
			Database: getEnv("DB_NAME", "meridian"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			LockTTL:  getEnvDuration("BOOKING_LOCK_TTL", 5*time.Second),
		},
		KurrentDB: KurrentDBConfig{
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Booking: BookingConfig{
			SlotGranularity:       getEnvDuration("SLOT_GRANULARITY", 30*time.Minute),
			SuggestionHorizonDays: getEnvInt("SUGGESTION_HORIZON_DAYS", 14),
		},
		Notification: NotificationConfig{
			Workers:    getEnvInt("NOTIFICATION_WORKERS", 4),
			BufferSize: getEnvInt("NOTIFICATION_BUFFER", 1000),
			FromEmail:  getEnv("NOTIFICATION_FROM", "no-reply@meridian.health"),
			SMTPHost:   getEnv("SMTP_HOST", "localhost"),
			SMTPPort:   getEnvInt("SMTP_PORT", 1025),
		},
		HIS: HISConfig{
			Enabled:      getEnvBool("HIS_ENABLED", false),
			Host:         getEnv("HIS_DB_HOST", "localhost"),
			Port:         getEnvInt("HIS_DB_PORT", 1433),
			User:         getEnv("HIS_DB_USER", "sa"),
			Password:     getEnv("HIS_DB_PASSWORD", ""),
			Database:     getEnv("HIS_DB_NAME", "hospital_legacy"),
			PollInterval: getEnvDuration("HIS_POLL_INTERVAL", 5*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
