package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqldb/sqldbtest"
)

// flakySink fails the first failures publishes
type flakySink struct {
	mu        sync.Mutex
	failures  int
	published []*entity.Notification
}

func (s *flakySink) Name() string { return "flaky" }

func (s *flakySink) Publish(_ context.Context, n *entity.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.published = append(s.published, n)
	return nil
}

type relayFixture struct {
	relay         *OutboxRelay
	outbox        *repository.OutboxRepository
	notifications *repository.NotificationRepository
	expenses      *repository.ExpenseRepository
	sink          *flakySink
	clock         time.Time
}

func newRelayFixture(t *testing.T, failures int) *relayFixture {
	t.Helper()
	db := sqldbtest.New(t)
	logger := zap.NewNop()

	f := &relayFixture{
		outbox:        repository.NewOutboxRepository(db, logger),
		notifications: repository.NewNotificationRepository(db, logger),
		expenses:      repository.NewExpenseRepository(db, logger),
		sink:          &flakySink{failures: failures},
		clock:         time.Now().UTC().Add(time.Second),
	}

	events := dispatcher.NewDispatcher()
	t.Cleanup(func() { _ = events.Close() })
	events.SubscribeNamed(event.TypeNotificationCreated, "flaky", SinkHandler(f.sink))

	f.relay = NewOutboxRelay(OutboxRelayConfig{
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffMax:  time.Minute,
	}, f.outbox, f.notifications, events, logger)
	f.relay.now = func() time.Time { return f.clock }
	return f
}

func (f *relayFixture) enqueue(t *testing.T, payload []byte) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, f.outbox.Enqueue(context.Background(), &entity.OutboxEvent{
		ID:          id,
		EventType:   entity.OutboxEventNotification,
		AggregateID: "e-1",
		Payload:     payload,
	}))
	return id
}

func draftPayload(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(entity.NotificationDraft{
		UserID:    "emp-1",
		CompanyID: "acme",
		Type:      entity.NotificationExpenseApproved,
		Title:     "Expense approved",
		Message:   "Your expense was approved.",
		Data:      map[string]interface{}{"expense_id": "e-1"},
	})
	require.NoError(t, err)
	return raw
}

func TestOutboxRelay_Delivers(t *testing.T) {
	f := newRelayFixture(t, 0)
	ctx := context.Background()
	id := f.enqueue(t, draftPayload(t))

	published, err := f.relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	evt, err := f.outbox.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.OutboxStatusPublished, evt.Status)
	assert.Equal(t, 1, evt.Attempts)

	stored, err := f.notifications.ListByUser(ctx, "emp-1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, id, stored[0].ID)
	assert.JSONEq(t, `{"expense_id":"e-1"}`, string(stored[0].Data))

	require.Len(t, f.sink.published, 1)
	assert.Equal(t, id, f.sink.published[0].ID)

	published, err = f.relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, published)
}

func TestOutboxRelay_SinkFailureRetriesWithoutTouchingExpense(t *testing.T) {
	f := newRelayFixture(t, 1)
	ctx := context.Background()

	expense := &entity.Expense{
		ID: uuid.NewString(), Amount: decimal.RequireFromString("10"), Currency: "USD",
		Category: "c", Description: "d", Status: workflow.StateApproved,
		SubmittedBy: "emp-1", CompanyID: "acme",
	}
	require.NoError(t, f.expenses.Create(ctx, expense))

	id := f.enqueue(t, draftPayload(t))

	published, err := f.relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, published)

	evt, err := f.outbox.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.OutboxStatusFailed, evt.Status)
	assert.Equal(t, 1, evt.Attempts)
	assert.Contains(t, evt.LastError, "sink unavailable")
	assert.WithinDuration(t, f.clock.Add(time.Second), evt.NextAttempt, time.Millisecond)

	stored, err := f.expenses.GetByID(ctx, expense.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, stored.Status)
	assert.Equal(t, expense.Version, stored.Version)

	// not due yet
	published, err = f.relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, published)

	f.clock = f.clock.Add(2 * time.Second)
	published, err = f.relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	notifications, err := f.notifications.ListByUser(ctx, "emp-1", 10)
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
}

func TestOutboxRelay_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newRelayFixture(t, 10)
	ctx := context.Background()
	id := f.enqueue(t, draftPayload(t))

	for i := 0; i < 3; i++ {
		_, err := f.relay.RunOnce(ctx)
		require.NoError(t, err)
		f.clock = f.clock.Add(time.Hour)
	}

	evt, err := f.outbox.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.OutboxStatusInvalid, evt.Status)
	assert.Equal(t, 3, evt.Attempts)
	assert.Contains(t, evt.LastError, "giving up")
}

func TestOutboxRelay_MalformedPayloadIsInvalid(t *testing.T) {
	f := newRelayFixture(t, 0)
	ctx := context.Background()

	bad := f.enqueue(t, []byte(`{"user_id":`))
	incomplete := f.enqueue(t, []byte(`{"user_id":"u","type":"expense_paid"}`))

	_, err := f.relay.RunOnce(ctx)
	require.NoError(t, err)

	for _, id := range []string{bad, incomplete} {
		evt, err := f.outbox.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entity.OutboxStatusInvalid, evt.Status)
	}
	assert.Empty(t, f.sink.published)
}

func TestOutboxRelay_Backoff(t *testing.T) {
	r := NewOutboxRelay(OutboxRelayConfig{BackoffBase: time.Second, BackoffMax: 5 * time.Second}, nil, nil, nil, zap.NewNop())

	assert.Equal(t, time.Second, r.Backoff(0))
	assert.Equal(t, time.Second, r.Backoff(1))
	assert.Equal(t, 2*time.Second, r.Backoff(2))
	assert.Equal(t, 4*time.Second, r.Backoff(3))
	assert.Equal(t, 5*time.Second, r.Backoff(4))
	assert.Equal(t, 5*time.Second, r.Backoff(30))
}

func TestOutboxRelay_StartStop(t *testing.T) {
	f := newRelayFixture(t, 0)
	f.relay.config.PollInterval = 10 * time.Millisecond
	f.relay.now = func() time.Time { return time.Now().UTC().Add(time.Second) }
	f.enqueue(t, draftPayload(t))

	require.NoError(t, f.relay.Start(context.Background()))
	assert.Error(t, f.relay.Start(context.Background()))

	require.Eventually(t, func() bool {
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		return len(f.sink.published) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.relay.Stop())
	require.NoError(t, f.relay.Stop())
}
