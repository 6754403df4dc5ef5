package repository

import (
	"context"

	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// DeliveriesRepository records and lists per-subscriber broadcast outcomes (ClickHouse).
type DeliveriesRepository interface {
	InsertBatch(ctx context.Context, rows []model.Delivery) error
	List(ctx context.Context, fid string, status model.DeliveryStatus, limit, offset int) ([]model.Delivery, error)
}

type chDeliveriesRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHDeliveriesRepository(ch *sqlx.DB) DeliveriesRepository {
	return &chDeliveriesRepository{ch: ch}
}

// InsertBatch writes all rows as one ClickHouse block (prepare + exec per row + commit).
func (r *chDeliveriesRepository) InsertBatch(ctx context.Context, rows []model.Delivery) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO notifygw.deliveries (run_id, fid, notification_id, status, error, created_at)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range rows {
		if _, err := stmt.ExecContext(ctx, d.RunID, d.FID, d.NotificationID, d.Status.String(), d.Error, d.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *chDeliveriesRepository) List(ctx context.Context, fid string, status model.DeliveryStatus, limit, offset int) ([]model.Delivery, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT run_id, fid, notification_id, status, error, created_at
		FROM notifygw.deliveries
		WHERE 1 = 1
	`
	args := []any{}

	if fid != "" {
		q += " AND fid = ?"
		args = append(args, fid)
	}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []model.Delivery
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
