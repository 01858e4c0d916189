package ordersync

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radbridge/radbridge/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type syncLogRepoPG struct{ pool *pgxpool.Pool }

func NewSyncLogRepoPG(pool *pgxpool.Pool) SyncLogRepository {
	return &syncLogRepoPG{pool: pool}
}

func (r *syncLogRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *syncLogRepoPG) Create(ctx context.Context, l *SyncLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	errsJSON, err := json.Marshal(l.Errors)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO sync_logs (id, kind, total, processed, created, updated, failed, errors, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		l.ID, l.Kind, l.Total, l.Processed, l.Created, l.Updated, l.Failed,
		errsJSON, l.StartedAt, l.FinishedAt)
	return err
}

func (r *syncLogRepoPG) List(ctx context.Context, limit, offset int) ([]*SyncLog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM sync_logs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, kind, total, processed, created, updated, failed, errors, started_at, finished_at
		FROM sync_logs ORDER BY started_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*SyncLog
	for rows.Next() {
		var l SyncLog
		var errsJSON []byte
		if err := rows.Scan(&l.ID, &l.Kind, &l.Total, &l.Processed, &l.Created, &l.Updated,
			&l.Failed, &errsJSON, &l.StartedAt, &l.FinishedAt); err != nil {
			return nil, 0, err
		}
		if len(errsJSON) > 0 {
			if err := json.Unmarshal(errsJSON, &l.Errors); err != nil {
				return nil, 0, err
			}
		}
		items = append(items, &l)
	}
	return items, total, nil
}
