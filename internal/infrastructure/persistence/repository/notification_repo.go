package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqldb"
)

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqldb.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// CreateIfAbsent inserts the notification unless its ID is already stored
func (r *NotificationRepository) CreateIfAbsent(ctx context.Context, n *entity.Notification) (bool, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO notifications (
			id, user_id, company_id, type, title, message, data, is_read, read_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		n.ID,
		n.UserID,
		n.CompanyID,
		string(n.Type),
		n.Title,
		n.Message,
		nullRaw(n.Data),
		n.IsRead,
		nullTime(n.ReadAt),
		n.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err))
		return false, fmt.Errorf("failed to create notification: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListByUser returns a user's notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*entity.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	query := r.db.Rebind(`
		SELECT id, user_id, company_id, type, title, message, data, is_read, read_at, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, userID, limit)
	if err != nil {
		r.logger.Error("Failed to list notifications",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var result []*entity.Notification
	for rows.Next() {
		var (
			n      entity.Notification
			typ    string
			data   sql.NullString
			readAt sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.CompanyID, &typ, &n.Title, &n.Message,
			&data, &n.IsRead, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = entity.NotificationType(typ)
		n.ReadAt = timePtr(readAt)
		if data.Valid && data.String != "" {
			n.Data = json.RawMessage(data.String)
		}
		result = append(result, &n)
	}

	return result, rows.Err()
}

var _ port.NotificationRepository = (*NotificationRepository)(nil)
