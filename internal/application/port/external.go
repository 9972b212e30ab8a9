package port

import (
	"context"
	"io"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ExpenseAdvisor produces an informational policy note for a submitted expense
type ExpenseAdvisor interface {
	Advise(ctx context.Context, expense *entity.Expense) (string, error)
}

// NotificationSink delivers a persisted notification to a real-time channel
type NotificationSink interface {
	Name() string
	Publish(ctx context.Context, n *entity.Notification) error
}

// MessageSender sends a plain text message to a user of an IM platform
type MessageSender interface {
	SendText(ctx context.Context, userID, text string) error
}

// ReportWriter renders approved expenses as a spreadsheet
type ReportWriter interface {
	WriteApproved(ctx context.Context, w io.Writer, expenses []*entity.Expense) error
	ContentType() string
}
