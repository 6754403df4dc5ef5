package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCHDeliveriesRepository_InsertBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCHDeliveriesRepository(db)

	ts := time.Date(2026, 10, 16, 17, 0, 0, 0, time.UTC)
	rows := []model.Delivery{
		{RunID: "r1", FID: "u1", NotificationID: "daily-2026-10-16", Status: model.StatusSent, CreatedAt: ts},
		{RunID: "r1", FID: "u2", NotificationID: "daily-2026-10-16", Status: model.StatusFailed, Error: "status=500", CreatedAt: ts},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO notifygw.deliveries")
	prep.ExpectExec().
		WithArgs("r1", "u1", "daily-2026-10-16", "sent", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("r1", "u2", "daily-2026-10-16", "failed", "status=500", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.InsertBatch(context.Background(), rows))
}

func TestCHDeliveriesRepository_InsertBatchEmpty(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewCHDeliveriesRepository(db)

	assert.NoError(t, repo.InsertBatch(context.Background(), nil))
}

func TestCHDeliveriesRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCHDeliveriesRepository(db)

	ts := time.Date(2026, 10, 16, 17, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("AND fid = ? AND status = ? ORDER BY created_at DESC LIMIT ? OFFSET ?")).
		WithArgs("u2", "failed", int64(50), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "fid", "notification_id", "status", "error", "created_at"}).
			AddRow("r1", "u2", "daily-2026-10-16", "failed", "status=500", ts))

	got, err := repo.List(context.Background(), "u2", model.StatusFailed, 5000, -1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.StatusFailed, got[0].Status)
	assert.Equal(t, "status=500", got[0].Error)
	assert.Equal(t, ts, got[0].CreatedAt)
}
