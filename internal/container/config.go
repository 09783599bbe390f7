// Package container provides dependency injection and lifecycle management
// for the approval service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Redis event sink configuration
	Redis RedisConfig

	// Lark chat configuration
	Lark LarkConfig

	// Delivery tuning shared by every sink
	Notification NotificationConfig

	// Escalation scanner configuration
	Escalation EscalationConfig

	// Report configuration
	Report ReportConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is sqlite or postgres
	Driver string

	// Path to SQLite database file
	Path string

	// DSN is the postgres connection string
	DSN string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// MigrationsDir holds one subdirectory of migrations per driver
	MigrationsDir string
}

// RedisConfig holds the pub/sub sink settings.
type RedisConfig struct {
	Enabled       bool
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	Enabled bool

	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string

	// ReceiveIDType is the id type of directory user ids, open_id by default
	ReceiveIDType string
}

// NotificationConfig holds retry, breaker and rate limit settings.
type NotificationConfig struct {
	RetryAttempts   uint
	RetryDelay      time.Duration
	CallTimeout     time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	RatePerSecond   float64
	Burst           int
}

// EscalationConfig holds escalation scanner settings.
type EscalationConfig struct {
	Enabled     bool
	Schedule    string
	ScanTimeout time.Duration
}

// ReportConfig holds ledger report settings.
type ReportConfig struct {
	// OutputDir keeps exported workbooks; empty disables the copy
	OutputDir string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "data/approval.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			MigrationsDir:   "migrations",
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			ChannelPrefix: "approval",
		},
		Lark: LarkConfig{
			ReceiveIDType: "open_id",
		},
		Notification: NotificationConfig{
			RetryAttempts:   3,
			RetryDelay:      200 * time.Millisecond,
			CallTimeout:     5 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
			RatePerSecond:   50,
			Burst:           10,
		},
		Escalation: EscalationConfig{
			Enabled:     true,
			Schedule:    "@every 5m",
			ScanTimeout: time.Minute,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	if c.Lark.Enabled && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret are required")
	}

	if c.Escalation.Enabled && c.Escalation.Schedule == "" {
		return fmt.Errorf("escalation.schedule is required")
	}

	return nil
}
