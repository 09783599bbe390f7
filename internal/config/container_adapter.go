package config

import (
	"github.com/garyjia/approval-flow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Redis: container.RedisConfig{
			Enabled:       c.Redis.Enabled,
			Addr:          c.Redis.Addr,
			Password:      c.Redis.Password,
			DB:            c.Redis.DB,
			ChannelPrefix: c.Redis.ChannelPrefix,
		},
		Lark: container.LarkConfig{
			Enabled:       c.Lark.Enabled,
			AppID:         c.Lark.AppID,
			AppSecret:     c.Lark.AppSecret,
			ReceiveIDType: c.Lark.ReceiveIDType,
		},
		Notification: container.NotificationConfig{
			RetryAttempts:   c.Notification.RetryAttempts,
			RetryDelay:      c.Notification.RetryDelay,
			CallTimeout:     c.Notification.CallTimeout,
			BreakerFailures: c.Notification.BreakerFailures,
			BreakerTimeout:  c.Notification.BreakerTimeout,
			RatePerSecond:   c.Notification.RatePerSecond,
			Burst:           c.Notification.Burst,
		},
		Escalation: container.EscalationConfig{
			Enabled:     c.Escalation.Enabled,
			Schedule:    c.Escalation.Schedule,
			ScanTimeout: c.Escalation.ScanTimeout,
		},
		Report: container.ReportConfig{
			OutputDir: c.Report.OutputDir,
		},
	}
}
