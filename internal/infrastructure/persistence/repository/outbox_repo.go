package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperror"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqldb"
)

const outboxColumns = `
	id, event_type, aggregate_id, payload, status, attempts, last_error,
	next_attempt_at, published_at, created_at, updated_at`

// OutboxRepository implements port.OutboxRepository.
// Claims are conditional updates, so several relays may poll the same table.
type OutboxRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sqldb.DB, logger *zap.Logger) *OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// Enqueue stores a PENDING event due immediately. It joins the caller's transaction.
func (r *OutboxRepository) Enqueue(ctx context.Context, evt *entity.OutboxEvent) error {
	now := time.Now().UTC()
	evt.Status = entity.OutboxStatusPending
	evt.CreatedAt = now
	evt.UpdatedAt = now
	if evt.NextAttempt.IsZero() {
		evt.NextAttempt = now
	}

	query := r.db.Rebind(`INSERT INTO outbox_events (` + outboxColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		evt.ID,
		evt.EventType,
		evt.AggregateID,
		string(evt.Payload),
		string(evt.Status),
		evt.Attempts,
		evt.LastError,
		evt.NextAttempt.UTC(),
		nullTime(evt.PublishedAt),
		evt.CreatedAt,
		evt.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to enqueue outbox event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.EventType),
			zap.Error(err))
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}

	return nil
}

// ClaimBatch moves due events to PROCESSING, incrementing their attempt count
func (r *OutboxRepository) ClaimBatch(ctx context.Context, now time.Time, limit int) ([]*entity.OutboxEvent, error) {
	now = now.UTC()
	query := r.db.Rebind(`
		SELECT id FROM outbox_events
		WHERE status IN (?, ?) AND next_attempt_at <= ?
		ORDER BY created_at, id
		LIMIT ?`)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query,
		string(entity.OutboxStatusPending), string(entity.OutboxStatusFailed), now, limit)
	if err != nil {
		r.logger.Error("Failed to select due outbox events", zap.Error(err))
		return nil, fmt.Errorf("failed to select due outbox events: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan outbox id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	claim := r.db.Rebind(`
		UPDATE outbox_events
		SET status = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`)

	claimed := make([]*entity.OutboxEvent, 0, len(ids))
	for _, id := range ids {
		result, err := r.db.Executor(ctx).ExecContext(ctx, claim,
			string(entity.OutboxStatusProcessing), now, id,
			string(entity.OutboxStatusPending), string(entity.OutboxStatusFailed))
		if err != nil {
			return claimed, fmt.Errorf("failed to claim outbox event %s: %w", id, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			// taken by another relay
			continue
		}

		evt, err := r.GetByID(ctx, id)
		if err != nil {
			return claimed, err
		}
		claimed = append(claimed, evt)
	}

	return claimed, nil
}

// MarkPublished finalizes a delivered event
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.transition(ctx, id, entity.OutboxStatusPublished, `published_at = ?, last_error = ''`, now)
}

// MarkFailed records a delivery error and schedules the next attempt
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, reason string, nextAttempt time.Time) error {
	return r.transition(ctx, id, entity.OutboxStatusFailed, `last_error = ?, next_attempt_at = ?`, reason, nextAttempt.UTC())
}

// MarkInvalid parks an event that can never be delivered
func (r *OutboxRepository) MarkInvalid(ctx context.Context, id string, reason string) error {
	return r.transition(ctx, id, entity.OutboxStatusInvalid, `last_error = ?`, reason)
}

// transition moves a PROCESSING event to status, setting the extra assignments
func (r *OutboxRepository) transition(ctx context.Context, id string, status entity.OutboxStatus, assignments string, args ...interface{}) error {
	if !entity.OutboxStatusProcessing.CanTransitionTo(status) {
		return fmt.Errorf("outbox transition to %s not allowed", status)
	}

	query := r.db.Rebind(`UPDATE outbox_events SET status = ?, ` + assignments + `, updated_at = ?
		WHERE id = ? AND status = ?`)

	params := append([]interface{}{string(status)}, args...)
	params = append(params, time.Now().UTC(), id, string(entity.OutboxStatusProcessing))

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, params...)
	if err != nil {
		r.logger.Error("Failed to update outbox event",
			zap.String("event_id", id),
			zap.String("status", string(status)),
			zap.Error(err))
		return fmt.Errorf("failed to update outbox event: %w", err)
	}

	return checkApplied(ctx, r.db, result, "outbox_events", "outbox event", id)
}

// ReleaseStale hands PROCESSING events abandoned by a crashed relay back for retry
func (r *OutboxRepository) ReleaseStale(ctx context.Context, before time.Time) (int, error) {
	now := time.Now().UTC()
	query := r.db.Rebind(`
		UPDATE outbox_events
		SET status = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		string(entity.OutboxStatusFailed), "processing timed out", now, now,
		string(entity.OutboxStatusProcessing), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to release stale outbox events: %w", err)
	}

	n, err := result.RowsAffected()
	return int(n), err
}

// GetByID retrieves an outbox event or returns NOT_FOUND
func (r *OutboxRepository) GetByID(ctx context.Context, id string) (*entity.OutboxEvent, error) {
	query := r.db.Rebind(`SELECT ` + outboxColumns + ` FROM outbox_events WHERE id = ?`)

	var (
		evt         entity.OutboxEvent
		payload     string
		status      string
		publishedAt sql.NullTime
	)
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, id).Scan(
		&evt.ID,
		&evt.EventType,
		&evt.AggregateID,
		&payload,
		&status,
		&evt.Attempts,
		&evt.LastError,
		&evt.NextAttempt,
		&publishedAt,
		&evt.CreatedAt,
		&evt.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("outbox event %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox event: %w", err)
	}

	evt.Payload = []byte(payload)
	evt.Status = entity.OutboxStatus(status)
	evt.PublishedAt = timePtr(publishedAt)
	return &evt, nil
}

var _ port.OutboxRepository = (*OutboxRepository)(nil)
