// Package realtime pushes delivered notifications to subscribed clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// DefaultChannelPrefix is prepended to the user id to form the channel name
const DefaultChannelPrefix = "notifications:"

// RedisPublisher publishes notifications on a per-user Redis channel
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedisPublisher creates a publisher. An empty prefix uses DefaultChannelPrefix.
func NewRedisPublisher(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, prefix: prefix, logger: logger}
}

// Name identifies the sink in logs
func (p *RedisPublisher) Name() string {
	return "redis"
}

// Channel returns the channel a user's notifications are published on
func (p *RedisPublisher) Channel(userID string) string {
	return p.prefix + userID
}

// Publish sends n as JSON to the recipient's channel
func (p *RedisPublisher) Publish(ctx context.Context, n *entity.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.Channel(n.UserID), body).Result()
	if err != nil {
		return fmt.Errorf("failed to publish notification %s: %w", n.ID, err)
	}

	p.logger.Debug("Notification published",
		zap.String("notification_id", n.ID),
		zap.String("channel", p.Channel(n.UserID)),
		zap.Int64("receivers", receivers))
	return nil
}

var _ port.NotificationSink = (*RedisPublisher)(nil)
