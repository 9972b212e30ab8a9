package dispatcher

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Handler reacts to one published event. Services publish expense.submitted,
// expense.status_changed, workflow.created and workflow.status_changed after
// commit; the outbox relay publishes notification.created once a notification
// row is stored, and every notification sink subscribes to it.
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a subscription as returned by ListHandlers.
// Name is the sink name for notification sinks, handler-N otherwise.
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
