// Package container provides dependency injection and lifecycle management
// for the expense approval service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/openai"
	"github.com/garyjia/expense-approval/internal/infrastructure/lock"
	"github.com/garyjia/expense-approval/internal/infrastructure/realtime"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/pkg/database"
)

// Locker backends
const (
	LockerMemory = "memory"
	LockerRedis  = "redis"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database database.Config

	// Ordering is entity.OrderingLoose or entity.OrderingStrict
	Ordering string

	Expense service.ExpenseOptions
	Locker  LockerConfig
	Redis   RedisConfig
	Lark    LarkConfig
	OpenAI  OpenAIConfig
	Outbox  worker.OutboxRelayConfig
}

// LockerConfig selects the per-expense lock
type LockerConfig struct {
	Backend string
	Redis   lock.Options
}

// RedisConfig holds the shared Redis connection settings
type RedisConfig struct {
	Enabled       bool
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// LarkConfig enables the Lark notification sink
type LarkConfig struct {
	Enabled bool
	Client  infraLark.Config
}

// OpenAIConfig enables the submission advisor
type OpenAIConfig struct {
	Enabled bool
	Client  openai.Config
	// PromptsPath overrides the built-in prompts when set
	PromptsPath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: database.Config{
			Driver:          string(database.DialectSQLite),
			Path:            "data/expenses.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Ordering: entity.OrderingLoose,
		Expense: service.ExpenseOptions{
			AdvisoryTimeout: 10 * time.Second,
		},
		Locker: LockerConfig{
			Backend: LockerMemory,
			Redis:   lock.DefaultOptions(),
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			ChannelPrefix: realtime.DefaultChannelPrefix,
		},
		Lark: LarkConfig{
			Client: infraLark.Config{ReceiveIDType: "user_id"},
		},
		OpenAI: OpenAIConfig{
			Client: openai.Config{Model: "gpt-4o-mini"},
		},
		Outbox: worker.DefaultOutboxRelayConfig(),
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch database.Dialect(c.Database.Driver) {
	case database.DialectSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
	case database.DialectPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Locker.Backend {
	case LockerMemory:
	case LockerRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("redis locker requires redis to be enabled")
		}
	default:
		return fmt.Errorf("unsupported locker backend %q", c.Locker.Backend)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}

	// Validate Lark configuration
	if c.Lark.Enabled && (c.Lark.Client.AppID == "" || c.Lark.Client.AppSecret == "") {
		return fmt.Errorf("lark app_id and app_secret are required")
	}

	// Validate OpenAI configuration
	if c.OpenAI.Enabled && c.OpenAI.Client.APIKey == "" {
		return fmt.Errorf("openai api_key is required")
	}

	return nil
}
