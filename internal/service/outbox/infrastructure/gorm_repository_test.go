package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"promo/internal/service/outbox/domain"
)

func newMockStore(t *testing.T) (*GormOutboxStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)
	return NewGormOutboxStore(db), mock
}

func claimedRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "event_id", "type", "aggregate_id", "payload",
		"status", "retry_count", "next_retry_at", "last_error", "created_at", "updated_at",
	}).AddRow(
		1, "evt-1", "promotion.coupon.issued", "C1", `{"k":"v"}`,
		domain.StatusPending, 0, now.Add(-time.Second), "", now, now,
	)
}

func TestSave(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `outbox_event`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ev, err := domain.NewEvent("evt-1", "promotion.coupon.issued", "C1", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), nil, ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchBatch(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("claims with skip locked and marks sent", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM `outbox_event` WHERE status IN (.+) FOR UPDATE SKIP LOCKED").
			WillReturnRows(claimedRow(now))
		mock.ExpectExec("UPDATE `outbox_event` SET").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		sent, err := store.DispatchBatch(ctx, now, 10, 100, func(ev *domain.OutboxEvent) (domain.Disposition, error) {
			assert.Equal(t, "evt-1", ev.EventID)
			return domain.DispositionSent, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed dispatch advances the retry schedule", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM `outbox_event` WHERE status IN").
			WillReturnRows(claimedRow(now))
		mock.ExpectExec("UPDATE `outbox_event` SET").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		var seen *domain.OutboxEvent
		sent, err := store.DispatchBatch(ctx, now, 10, 100, func(ev *domain.OutboxEvent) (domain.Disposition, error) {
			seen = ev
			return domain.DispositionFailed, errors.New("broker unavailable")
		})
		require.NoError(t, err)
		assert.Equal(t, 0, sent)
		assert.Equal(t, 1, seen.RetryCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skip leaves the row untouched", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM `outbox_event` WHERE status IN").
			WillReturnRows(claimedRow(now))
		mock.ExpectCommit()

		sent, err := store.DispatchBatch(ctx, now, 10, 100, func(ev *domain.OutboxEvent) (domain.Disposition, error) {
			return domain.DispositionSkip, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 0, sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
