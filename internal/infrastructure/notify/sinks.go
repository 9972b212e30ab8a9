// Package notify adapts outbound channels to port.NotificationSink.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// LarkSink sends each notification as an IM text message to its recipient
type LarkSink struct {
	sender port.MessageSender
}

// NewLarkSink wraps a message sender
func NewLarkSink(sender port.MessageSender) *LarkSink {
	return &LarkSink{sender: sender}
}

// Name identifies the sink in logs
func (s *LarkSink) Name() string {
	return "lark"
}

// Publish renders n as text and sends it
func (s *LarkSink) Publish(ctx context.Context, n *entity.Notification) error {
	if err := s.sender.SendText(ctx, n.UserID, FormatText(n)); err != nil {
		return fmt.Errorf("lark sink: %w", err)
	}
	return nil
}

// FormatText renders a notification as a short message body
func FormatText(n *entity.Notification) string {
	var b strings.Builder
	if n.Title != "" {
		b.WriteString("[")
		b.WriteString(n.Title)
		b.WriteString("] ")
	}
	b.WriteString(n.Message)
	return strings.TrimSpace(b.String())
}

// LogSink writes notifications to the log. Used when no real channel is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Name identifies the sink in logs
func (s *LogSink) Name() string {
	return "log"
}

// Publish logs n at info level
func (s *LogSink) Publish(_ context.Context, n *entity.Notification) error {
	s.logger.Info("Notification delivered",
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("type", string(n.Type)),
		zap.String("title", n.Title))
	return nil
}

var (
	_ port.NotificationSink = (*LarkSink)(nil)
	_ port.NotificationSink = (*LogSink)(nil)
)
