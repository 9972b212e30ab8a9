package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// PayloadNotification is the event payload key holding the *entity.Notification
const PayloadNotification = "notification"

// OutboxRelayConfig holds configuration for the outbox relay
type OutboxRelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	// StaleAfter returns PROCESSING events claimed longer ago than this to the queue
	StaleAfter time.Duration
}

// DefaultOutboxRelayConfig returns default configuration
func DefaultOutboxRelayConfig() OutboxRelayConfig {
	return OutboxRelayConfig{
		PollInterval: 2 * time.Second,
		BatchSize:    20,
		MaxAttempts:  5,
		BackoffBase:  2 * time.Second,
		BackoffMax:   5 * time.Minute,
		StaleAfter:   5 * time.Minute,
	}
}

// OutboxRelay delivers notification outbox events at least once: it stores the
// Notification record under the outbox id and dispatches it to the sinks
type OutboxRelay struct {
	config OutboxRelayConfig

	outboxRepo       port.OutboxRepository
	notificationRepo port.NotificationRepository
	events           dispatcher.Dispatcher
	logger           *zap.Logger
	now              func() time.Time

	mu             sync.Mutex
	cancel         context.CancelFunc
	done           chan struct{}
	isRunning      bool
	publishedCount int
	failedCount    int
}

// NewOutboxRelay creates a new outbox relay
func NewOutboxRelay(
	config OutboxRelayConfig,
	outboxRepo port.OutboxRepository,
	notificationRepo port.NotificationRepository,
	events dispatcher.Dispatcher,
	logger *zap.Logger,
) *OutboxRelay {
	def := DefaultOutboxRelayConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = def.BackoffBase
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = def.BackoffMax
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}

	return &OutboxRelay{
		config:           config,
		outboxRepo:       outboxRepo,
		notificationRepo: notificationRepo,
		events:           events,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the relay polling loop
func (r *OutboxRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return fmt.Errorf("outbox relay already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.isRunning = true

	r.logger.Info("OutboxRelay started",
		zap.Duration("poll_interval", r.config.PollInterval),
		zap.Int("batch_size", r.config.BatchSize),
		zap.Int("max_attempts", r.config.MaxAttempts))

	go r.pollLoop(loopCtx, r.done)
	return nil
}

// Stop terminates the loop and waits for the batch in flight
func (r *OutboxRelay) Stop() error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done

	r.mu.Lock()
	r.logger.Info("OutboxRelay stopped",
		zap.Int("published_count", r.publishedCount),
		zap.Int("failed_count", r.failedCount))
	r.mu.Unlock()
	return nil
}

// Name returns the worker name for identification
func (r *OutboxRelay) Name() string {
	return "OutboxRelay"
}

func (r *OutboxRelay) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Outbox relay pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce requeues stale claims, then claims and delivers one batch.
// It returns the number of events published.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	now := r.now()

	released, err := r.outboxRepo.ReleaseStale(ctx, now.Add(-r.config.StaleAfter))
	if err != nil {
		return 0, fmt.Errorf("release stale events: %w", err)
	}
	if released > 0 {
		r.logger.Warn("Requeued stale outbox events", zap.Int("count", released))
	}

	batch, err := r.outboxRepo.ClaimBatch(ctx, now, r.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim outbox batch: %w", err)
	}

	published := 0
	for _, evt := range batch {
		if ctx.Err() != nil {
			break
		}
		if r.deliver(ctx, evt) {
			published++
		}
	}
	return published, nil
}

// deliver processes one claimed event and records its outcome
func (r *OutboxRelay) deliver(ctx context.Context, evt *entity.OutboxEvent) bool {
	if evt.EventType != entity.OutboxEventNotification {
		r.invalid(ctx, evt, fmt.Sprintf("unsupported event type %q", evt.EventType))
		return false
	}

	var draft entity.NotificationDraft
	if err := json.Unmarshal(evt.Payload, &draft); err != nil {
		r.invalid(ctx, evt, fmt.Sprintf("malformed payload: %v", err))
		return false
	}

	n, err := notificationFromDraft(evt, draft)
	if err != nil {
		r.invalid(ctx, evt, err.Error())
		return false
	}

	created, err := r.notificationRepo.CreateIfAbsent(ctx, n)
	if err != nil {
		r.retry(ctx, evt, err)
		return false
	}

	notified := event.NewEvent(event.TypeNotificationCreated, n.ID, n.CompanyID, map[string]interface{}{
		PayloadNotification: n,
		"user_id":           n.UserID,
		"type":              string(n.Type),
		"first_delivery":    created,
	})
	if err := r.events.Dispatch(ctx, notified); err != nil {
		r.retry(ctx, evt, err)
		return false
	}

	if err := r.outboxRepo.MarkPublished(ctx, evt.ID); err != nil {
		r.logger.Error("Failed to mark outbox event published",
			zap.String("event_id", evt.ID),
			zap.Error(err))
		return false
	}

	r.mu.Lock()
	r.publishedCount++
	r.mu.Unlock()

	r.logger.Debug("Outbox event published",
		zap.String("event_id", evt.ID),
		zap.String("user_id", n.UserID),
		zap.Int("attempt", evt.Attempts))
	return true
}

// retry schedules another attempt with exponential backoff, or gives up
// once MaxAttempts is reached
func (r *OutboxRelay) retry(ctx context.Context, evt *entity.OutboxEvent, cause error) {
	r.mu.Lock()
	r.failedCount++
	r.mu.Unlock()

	if evt.Attempts >= r.config.MaxAttempts {
		r.invalid(ctx, evt, fmt.Sprintf("giving up after %d attempts: %v", evt.Attempts, cause))
		return
	}

	next := r.now().Add(r.Backoff(evt.Attempts))
	r.logger.Warn("Outbox delivery failed, will retry",
		zap.String("event_id", evt.ID),
		zap.Int("attempt", evt.Attempts),
		zap.Time("next_attempt", next),
		zap.Error(cause))

	if err := r.outboxRepo.MarkFailed(ctx, evt.ID, cause.Error(), next); err != nil {
		r.logger.Error("Failed to mark outbox event failed",
			zap.String("event_id", evt.ID),
			zap.Error(err))
	}
}

func (r *OutboxRelay) invalid(ctx context.Context, evt *entity.OutboxEvent, reason string) {
	r.logger.Error("Outbox event cannot be delivered",
		zap.String("event_id", evt.ID),
		zap.String("reason", reason))

	if err := r.outboxRepo.MarkInvalid(ctx, evt.ID, reason); err != nil {
		r.logger.Error("Failed to mark outbox event invalid",
			zap.String("event_id", evt.ID),
			zap.Error(err))
	}
}

// Backoff returns the delay before the attempt following attempt n (1-based)
func (r *OutboxRelay) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := r.config.BackoffBase
	for i := 1; i < n; i++ {
		d *= 2
		if d >= r.config.BackoffMax {
			return r.config.BackoffMax
		}
	}
	return d
}

func notificationFromDraft(evt *entity.OutboxEvent, draft entity.NotificationDraft) (*entity.Notification, error) {
	if draft.UserID == "" || draft.CompanyID == "" || !draft.Type.IsValid() {
		return nil, fmt.Errorf("incomplete notification draft")
	}

	var data json.RawMessage
	if len(draft.Data) > 0 {
		raw, err := json.Marshal(draft.Data)
		if err != nil {
			return nil, fmt.Errorf("encode notification data: %w", err)
		}
		data = raw
	}

	return &entity.Notification{
		ID:        evt.ID,
		UserID:    draft.UserID,
		CompanyID: draft.CompanyID,
		Type:      draft.Type,
		Title:     draft.Title,
		Message:   draft.Message,
		Data:      data,
		CreatedAt: evt.CreatedAt,
	}, nil
}

// SinkHandler adapts a NotificationSink to a dispatcher handler for
// event.TypeNotificationCreated
func SinkHandler(sink port.NotificationSink) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		n, ok := evt.Payload[PayloadNotification].(*entity.Notification)
		if !ok {
			return fmt.Errorf("event %s carries no notification", evt.ID)
		}
		if err := sink.Publish(ctx, n); err != nil {
			return fmt.Errorf("%s sink: %w", sink.Name(), err)
		}
		return nil
	}
}
