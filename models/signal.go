package models

import "time"

// SignalKind names the state transition a Signal reports.
type SignalKind string

const (
	SignalNewJob     SignalKind = "NEW_JOB"
	SignalJobRemoved SignalKind = "JOB_REMOVED"
)

// Signal is an append-only change event.
type Signal struct {
	AccountName   string
	Kind          SignalKind
	Title         string
	OccurredAt    time.Time
	StrengthScore int
	SourceURL     *string
	JobUID        string
	Metadata      map[string]any
}

// SignalColumns lists the columns Row emits, in a stable order.
var SignalColumns = []string{
	"account_name",
	"signal_type",
	"title",
	"occurred_at",
	"strength_score",
	"source_url",
	"metadata",
	"job_uid",
}

// Row renders the signal as a column -> value map. The storage layer may
// prune keys the backend rejects, so every value must stand on its own.
func (s Signal) Row() map[string]any {
	var src any
	if s.SourceURL != nil {
		src = *s.SourceURL
	}
	return map[string]any{
		"account_name":   s.AccountName,
		"signal_type":    string(s.Kind),
		"title":          s.Title,
		"occurred_at":    s.OccurredAt.UTC(),
		"strength_score": s.StrengthScore,
		"source_url":     src,
		"metadata":       string(encodeMetadata(s.Metadata)),
		"job_uid":        s.JobUID,
	}
}

// RunTotals accumulates counters across every entity of a run.
type RunTotals struct {
	Entities             int
	RemovalsDeferred     int // entities whose removals the truncation guard held back
	ExpiredConfirmed     int // removals the expiry feed confirmed
	ExpiredFetchFailed   int
	JobsFetched          int
	JobsUpserted         int
	NewSignals           int
	RemovedSignals       int
	InactiveChunksFailed int
	SignalBatchesDropped int
}

// Add folds another set of counters into t.
func (t *RunTotals) Add(o RunTotals) {
	t.Entities += o.Entities
	t.RemovalsDeferred += o.RemovalsDeferred
	t.ExpiredConfirmed += o.ExpiredConfirmed
	t.ExpiredFetchFailed += o.ExpiredFetchFailed
	t.JobsFetched += o.JobsFetched
	t.JobsUpserted += o.JobsUpserted
	t.NewSignals += o.NewSignals
	t.RemovedSignals += o.RemovedSignals
	t.InactiveChunksFailed += o.InactiveChunksFailed
	t.SignalBatchesDropped += o.SignalBatchesDropped
}
