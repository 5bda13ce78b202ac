package storage

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"job-signals/models"
	"job-signals/utils"
)

const (
	DefaultSignalsTable      = "signals"
	DefaultMaxSignalAttempts = 8
	DefaultInactiveBatchSize = 200
	DefaultActiveReadLimit   = 10000
)

// WriterOptions tunes a ResilientWriter. Zero values pick the defaults above.
type WriterOptions struct {
	SignalsTable      string
	MaxSignalAttempts int
	InactiveBatchSize int
	ActiveReadLimit   int
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.SignalsTable == "" {
		o.SignalsTable = DefaultSignalsTable
	}
	if o.MaxSignalAttempts <= 0 {
		o.MaxSignalAttempts = DefaultMaxSignalAttempts
	}
	if o.InactiveBatchSize <= 0 {
		o.InactiveBatchSize = DefaultInactiveBatchSize
	}
	if o.ActiveReadLimit <= 0 {
		o.ActiveReadLimit = DefaultActiveReadLimit
	}
	return o
}

// InactiveResult reports how a chunked mark-inactive pass went.
type InactiveResult struct {
	Succeeded [][]string // chunks the backend accepted, in issue order
	Failed    int        // number of chunks that errored
}

// ResilientWriter sits between the reconciler and a Backend. Job state writes
// are passed through and must succeed; signal writes adapt to schema drift by
// pruning rejected columns and never fail the run.
//
// A ResilientWriter lives for one run and is not safe for concurrent use.
type ResilientWriter struct {
	backend Backend
	logger  *utils.Logger
	opts    WriterOptions
	sink    SignalSink

	// columns the signals table rejected earlier in this run
	dropped map[string]struct{}
}

// NewResilientWriter wraps backend.
func NewResilientWriter(backend Backend, logger *utils.Logger, opts WriterOptions) *ResilientWriter {
	return &ResilientWriter{
		backend: backend,
		logger:  logger,
		opts:    opts.withDefaults(),
		dropped: make(map[string]struct{}),
	}
}

// WithAuditSink mirrors every signal batch into sink before it is stored.
func (w *ResilientWriter) WithAuditSink(sink SignalSink) *ResilientWriter {
	w.sink = sink
	return w
}

// Options returns the effective options.
func (w *ResilientWriter) Options() WriterOptions { return w.opts }

// DroppedColumns lists the signal columns pruned so far, sorted.
func (w *ResilientWriter) DroppedColumns() []string {
	out := make([]string, 0, len(w.dropped))
	for c := range w.dropped {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ActiveJobUIDs reads the active ids for company, capped at ActiveReadLimit.
func (w *ResilientWriter) ActiveJobUIDs(ctx context.Context, company string) ([]string, error) {
	ids, err := w.backend.ActiveJobUIDs(ctx, company, w.opts.ActiveReadLimit)
	if err != nil {
		return nil, errors.Wrapf(err, "read active jobs for %q", company)
	}
	if len(ids) >= w.opts.ActiveReadLimit {
		w.logger.Warn("[writer] %s: active read hit the %d row cap; ids beyond it will look NEW and never be marked removed",
			company, w.opts.ActiveReadLimit)
	}
	return ids, nil
}

// UpsertJobs stores posts. Any error is returned: job state is the source of truth.
func (w *ResilientWriter) UpsertJobs(ctx context.Context, posts []models.JobPost) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	n, err := w.backend.UpsertJobs(ctx, posts)
	if err != nil {
		return n, errors.Wrapf(err, "upsert %d job posts", len(posts))
	}
	return n, nil
}

// MarkInactive flips ids of company to inactive in sorted, fixed-size chunks.
// Each chunk stands alone: a failure is logged and the next chunk still runs.
func (w *ResilientWriter) MarkInactive(ctx context.Context, company string, ids []string, at time.Time) InactiveResult {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var res InactiveResult
	size := w.opts.InactiveBatchSize
	for start := 0; start < len(sorted); start += size {
		end := start + size
		if end > len(sorted) {
			end = len(sorted)
		}
		chunk := sorted[start:end]

		if err := w.backend.MarkInactive(ctx, company, chunk, at); err != nil {
			res.Failed++
			w.logger.Warn("[writer] %s: mark inactive chunk %d (%d ids, %s..%s) failed: %v",
				company, start/size+1, len(chunk), chunk[0], chunk[len(chunk)-1], err)
			continue
		}
		res.Succeeded = append(res.Succeeded, chunk)
	}
	return res
}

// InsertSignals stores a signal batch, best effort. When the backend rejects a
// column, that column is removed from every row and the batch is retried, up
// to MaxSignalAttempts writes. Any other failure drops the batch with a
// warning. Reports whether the batch was stored.
func (w *ResilientWriter) InsertSignals(ctx context.Context, signals []models.Signal) bool {
	if len(signals) == 0 {
		return true
	}

	if w.sink != nil {
		if err := w.sink.WriteSignals(signals); err != nil {
			w.logger.Warn("[writer] audit sink write failed: %v", err)
		}
	}

	rows := make([]map[string]any, len(signals))
	for i, s := range signals {
		row := s.Row()
		for col := range w.dropped {
			delete(row, col)
		}
		rows[i] = row
	}

	table := w.opts.SignalsTable
	for attempt := 1; attempt <= w.opts.MaxSignalAttempts; attempt++ {
		if len(rows[0]) == 0 {
			w.logger.Warn("[writer] %s: every column was pruned, dropping %d signals", table, len(rows))
			return false
		}

		err := w.backend.InsertSignals(ctx, table, rows)
		if err == nil {
			return true
		}

		var unknown *UnknownColumnError
		if !errors.As(err, &unknown) {
			w.logger.Warn("[writer] %s: insert of %d signals rejected, dropping batch: %v", table, len(rows), err)
			return false
		}

		if _, present := rows[0][unknown.Column]; !present {
			w.logger.Warn("[writer] %s: backend rejected column %q which the batch does not send, dropping batch",
				table, unknown.Column)
			return false
		}

		w.logger.Warn("[writer] %s: column %q not in schema, pruning and retrying (attempt %d/%d)",
			table, unknown.Column, attempt, w.opts.MaxSignalAttempts)
		w.dropped[unknown.Column] = struct{}{}
		for _, row := range rows {
			delete(row, unknown.Column)
		}
	}

	w.logger.Warn("[writer] %s: gave up on %d signals after %d attempts", table, len(rows), w.opts.MaxSignalAttempts)
	return false
}

// Close closes the backend and the audit sink.
func (w *ResilientWriter) Close() error {
	var err error
	if w.sink != nil {
		err = w.sink.Close()
	}
	if cerr := w.backend.Close(); cerr != nil {
		err = errors.CombineErrors(err, cerr)
	}
	return err
}
