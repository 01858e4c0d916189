package ordersync

import (
	"time"

	"github.com/google/uuid"
)

// SyncError records why one order could not be reconciled. The rest of the
// batch is unaffected.
type SyncError struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// SyncResult summarizes one reconciliation run. Processed counts every order
// attempted regardless of outcome, so Processed = Created + Updated + Failed.
type SyncResult struct {
	Total     int         `json:"total"`
	Processed int         `json:"processed"`
	Created   int         `json:"created"`
	Updated   int         `json:"updated"`
	Failed    int         `json:"failed"`
	Errors    []SyncError `json:"errors,omitempty"`
}

// SyncLog maps to the sync_logs table: one write-once row per run.
type SyncLog struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	Kind       string      `db:"kind" json:"kind"`
	Total      int         `db:"total" json:"total"`
	Processed  int         `db:"processed" json:"processed"`
	Created    int         `db:"created" json:"created"`
	Updated    int         `db:"updated" json:"updated"`
	Failed     int         `db:"failed" json:"failed"`
	Errors     []SyncError `db:"errors" json:"errors,omitempty"`
	StartedAt  time.Time   `db:"started_at" json:"started_at"`
	FinishedAt time.Time   `db:"finished_at" json:"finished_at"`
}
