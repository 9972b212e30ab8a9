package sqldb_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqldb/sqldbtest"
)

func countOutbox(t *testing.T, db *sqldb.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM outbox_events").Scan(&n))
	return n
}

func insertOutbox(ctx context.Context, db *sqldb.DB, id string) error {
	_, err := db.Executor(ctx).ExecContext(ctx, db.Rebind(`
		INSERT INTO outbox_events (id, event_type, aggregate_id, payload, status, next_attempt_at, created_at, updated_at)
		VALUES (?, 'test', 'agg', '{}', 'PENDING', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`), id)
	return err
}

func TestWithTransaction_CommitAndRollback(t *testing.T) {
	db := sqldbtest.New(t)
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		assert.True(t, sqldb.InTransaction(ctx))
		return insertOutbox(ctx, db, "a")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countOutbox(t, db))

	boom := errors.New("boom")
	err = db.WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, insertOutbox(ctx, db, "b"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, countOutbox(t, db), "rolled back insert must not persist")
}

func TestWithTransaction_NestedReusesOuter(t *testing.T) {
	db := sqldbtest.New(t)
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(outer context.Context) error {
		require.NoError(t, db.WithTransaction(outer, func(inner context.Context) error {
			return insertOutbox(inner, db, "nested")
		}))
		return errors.New("abort outer")
	})
	require.Error(t, err)
	assert.Equal(t, 0, countOutbox(t, db))
}

func TestWithTransaction_PanicRollsBack(t *testing.T) {
	db := sqldbtest.New(t)

	assert.Panics(t, func() {
		_ = db.WithTransaction(context.Background(), func(ctx context.Context) error {
			_ = insertOutbox(ctx, db, "p")
			panic("crash")
		})
	})
	assert.Equal(t, 0, countOutbox(t, db))
}
