package config

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/container"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/openai"
	"github.com/garyjia/expense-approval/internal/infrastructure/lock"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/internal/tracing"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: database.Config{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Ordering: c.Workflow.Ordering,
		Expense: service.ExpenseOptions{
			MaxAmount:       decimal.NewFromFloat(c.Expense.MaxAmount),
			AdvisoryTimeout: c.Expense.AdvisoryTimeout,
		},
		Locker: container.LockerConfig{
			Backend: c.Locker.Backend,
			Redis: lock.Options{
				Prefix:     c.Locker.Prefix,
				Expiry:     c.Locker.Expiry,
				Tries:      c.Locker.Tries,
				RetryDelay: c.Locker.RetryDelay,
			},
		},
		Redis: container.RedisConfig{
			Enabled:       c.Redis.Enabled,
			Addr:          c.Redis.Addr,
			Password:      c.Redis.Password,
			DB:            c.Redis.DB,
			ChannelPrefix: c.Redis.ChannelPrefix,
		},
		Lark: container.LarkConfig{
			Enabled: c.Lark.Enabled,
			Client: infraLark.Config{
				AppID:         c.Lark.AppID,
				AppSecret:     c.Lark.AppSecret,
				ReceiveIDType: c.Lark.ReceiveIDType,
				BaseURL:       c.Lark.BaseURL,
			},
		},
		OpenAI: container.OpenAIConfig{
			Enabled: c.OpenAI.Enabled,
			Client: openai.Config{
				APIKey:  c.OpenAI.APIKey,
				BaseURL: c.OpenAI.BaseURL,
				Model:   c.OpenAI.Model,
			},
			PromptsPath: c.OpenAI.PromptsPath,
		},
		Outbox: worker.OutboxRelayConfig{
			PollInterval: c.Outbox.PollInterval,
			BatchSize:    c.Outbox.BatchSize,
			MaxAttempts:  c.Outbox.MaxAttempts,
			BackoffBase:  c.Outbox.BackoffBase,
			BackoffMax:   c.Outbox.BackoffMax,
			StaleAfter:   c.Outbox.StaleAfter,
		},
	}
}

// LoggerSettings returns the settings for utils.NewLogger
func (c *Config) LoggerSettings(service string) utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
		Service:    service,
	}
}

// TracingSettings returns the settings for tracing.Setup
func (c *Config) TracingSettings(version string) tracing.Config {
	return tracing.Config{
		Enabled:        c.Tracing.Enabled,
		ServiceName:    c.Tracing.ServiceName,
		ServiceVersion: version,
		Output:         c.Tracing.Output,
	}
}
