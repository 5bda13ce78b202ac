package storage

import (
	"context"
	"time"

	"job-signals/models"
)

// Backend is the contract every storage implementation must satisfy.
type Backend interface {
	// ActiveJobUIDs returns at most limit job_uids for company with is_active = true.
	ActiveJobUIDs(ctx context.Context, company string, limit int) ([]string, error)

	// UpsertJobs writes posts keyed by job_uid. On conflict first_seen_at is kept
	// and every other column is refreshed. Returns the number of rows written.
	UpsertJobs(ctx context.Context, posts []models.JobPost) (int, error)

	// MarkInactive sets is_active = false and last_seen_at = at for the given
	// job_uids of company.
	MarkInactive(ctx context.Context, company string, jobUIDs []string, at time.Time) error

	// InsertSignals appends rows to table. Rows share one key set. A rejected
	// column must surface as *UnknownColumnError.
	InsertSignals(ctx context.Context, table string, rows []map[string]any) error

	Close() error
}

// SignalSink receives every emitted signal batch, e.g. for an audit file.
type SignalSink interface {
	WriteSignals(signals []models.Signal) error
	Close() error
}
