package ordersync

import "context"

// SyncLogRepository persists reconciliation run summaries. Rows are written
// once and never updated.
type SyncLogRepository interface {
	Create(ctx context.Context, l *SyncLog) error
	List(ctx context.Context, limit, offset int) ([]*SyncLog, int, error)
}
