package repository

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// MySQLSubscribersRepository stores one row per subscriber in the subscribers table.
// Save rewrites the snapshot inside a single transaction.
type MySQLSubscribersRepository struct {
	db *sqlx.DB
}

func NewMySQLSubscribersRepository(db *sqlx.DB) *MySQLSubscribersRepository {
	return &MySQLSubscribersRepository{db: db}
}

var _ SubscribersRepository = (*MySQLSubscribersRepository)(nil)

type subscriberRow struct {
	FID     string    `db:"fid"`
	Token   string    `db:"token"`
	URL     string    `db:"url"`
	Enabled bool      `db:"enabled"`
	AddedAt time.Time `db:"added_at"`
}

func (r *MySQLSubscribersRepository) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *MySQLSubscribersRepository) Load(ctx context.Context) (model.Subscribers, error) {
	var rows []subscriberRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT fid, token, url, enabled, added_at
		  FROM subscribers
	`); err != nil {
		return nil, err
	}

	subs := make(model.Subscribers, len(rows))
	for _, rw := range rows {
		subs[model.Identity(rw.FID)] = model.Subscriber{
			Token:   rw.Token,
			URL:     rw.URL,
			Enabled: rw.Enabled,
			AddedAt: rw.AddedAt.UTC(),
		}
	}
	return subs, nil
}

// Save deletes rows absent from subs and upserts the rest, ordered by fid.
func (r *MySQLSubscribersRepository) Save(ctx context.Context, subs model.Subscribers) error {
	fids := make([]string, 0, len(subs))
	for id := range subs {
		fids = append(fids, id.String())
	}
	sort.Strings(fids)

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if len(fids) == 0 {
			_, err := tx.ExecContext(ctx, `DELETE FROM subscribers`)
			return err
		}

		query, args, err := sqlx.In(`DELETE FROM subscribers WHERE fid NOT IN (?)`, fids)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
			return err
		}

		var sb strings.Builder
		args = make([]any, 0, len(fids)*5)
		sb.WriteString(`INSERT INTO subscribers (fid, token, url, enabled, added_at) VALUES `)
		for i, fid := range fids {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?, ?, ?, ?, ?)")
			s := subs[model.Identity(fid)]
			args = append(args, fid, s.Token, s.URL, s.Enabled, s.AddedAt.UTC())
		}
		sb.WriteString(` ON DUPLICATE KEY UPDATE
			token = VALUES(token),
			url = VALUES(url),
			enabled = VALUES(enabled),
			added_at = VALUES(added_at)`)

		_, err = tx.ExecContext(ctx, sb.String(), args...)
		return err
	})
}
