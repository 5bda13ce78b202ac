package services

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"job-signals/models"
	"job-signals/scraper"
	"job-signals/storage"
	"job-signals/utils"
)

// JobStore is the persistence surface a run needs. *storage.ResilientWriter
// implements it.
type JobStore interface {
	ActiveJobUIDs(ctx context.Context, company string) ([]string, error)
	UpsertJobs(ctx context.Context, posts []models.JobPost) (int, error)
	MarkInactive(ctx context.Context, company string, ids []string, at time.Time) storage.InactiveResult
	InsertSignals(ctx context.Context, signals []models.Signal) bool
}

// RunOptions tunes an Orchestrator.
type RunOptions struct {
	Fetch             scraper.FetchParams
	InactiveBatchSize int
	// RemoveOnTruncated lets a fetch that hit Fetch.MaxJobs still mark
	// unseen postings removed.
	RemoveOnTruncated bool
	// ExpiredFeed also asks an ExpirySource which postings were taken down.
	// Confirmed ids are removed even when the truncation guard holds back
	// the diff removals.
	ExpiredFeed       bool
	DryRun            bool
	Now               func() time.Time
}

// Orchestrator drives one reconciliation pass per entity, strictly in order.
type Orchestrator struct {
	source     scraper.Source
	store      JobStore
	throttle   *utils.Throttle
	normalizer *Normalizer
	emitter    Emitter
	logger     *utils.Logger
	opts       RunOptions

	results []models.EntityResult
}

// NewOrchestrator wires a run. throttle may be nil to disable pacing.
func NewOrchestrator(source scraper.Source, store JobStore, throttle *utils.Throttle, logger *utils.Logger, opts RunOptions) *Orchestrator {
	if opts.InactiveBatchSize <= 0 {
		opts.InactiveBatchSize = storage.DefaultInactiveBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if throttle == nil {
		throttle = utils.NewThrottle(0)
	}
	return &Orchestrator{
		source:     source,
		store:      store,
		throttle:   throttle,
		normalizer: NewNormalizer(source.Name(), logger),
		logger:     logger,
		opts:       opts,
	}
}

// Run reconciles every entity in order. A fetch or upsert failure stops the
// run; the totals gathered so far are returned with the error, and whatever
// earlier entities committed stays committed.
func (o *Orchestrator) Run(ctx context.Context, entities []models.Entity) (models.RunTotals, error) {
	var totals models.RunTotals
	now := o.opts.Now().UTC()
	o.results = o.results[:0]

	o.logger.Info("[run] %d entities | source=%s | timeRange=%s | maxJobs=%d | dryRun=%v",
		len(entities), o.source.Name(), o.opts.Fetch.TimeRange, o.opts.Fetch.MaxJobs, o.opts.DryRun)

	for i, entity := range entities {
		if err := o.throttle.Wait(ctx); err != nil {
			return totals, errors.Wrap(err, "run interrupted")
		}

		o.logger.Info("[run] === %s (%d/%d) ===", entity.Name, i+1, len(entities))
		t, err := o.reconcile(ctx, entity, now)
		o.throttle.Done()
		totals.Add(t)
		o.results = append(o.results, models.EntityResult{Name: entity.Name, Totals: t})
		if err != nil {
			return totals, err
		}
	}
	return totals, nil
}

// Results lists the per-entity outcomes of the last Run, in run order.
func (o *Orchestrator) Results() []models.EntityResult {
	return append([]models.EntityResult(nil), o.results...)
}

func (o *Orchestrator) reconcile(ctx context.Context, entity models.Entity, now time.Time) (models.RunTotals, error) {
	t := models.RunTotals{Entities: 1}
	name := entity.Name

	prev, err := o.store.ActiveJobUIDs(ctx, name)
	if err != nil {
		return t, errors.Wrapf(err, "read active %s", name)
	}
	o.logger.Info("[run] %s: %d active before fetch", name, len(prev))

	raw, err := o.source.Fetch(ctx, entity, o.opts.Fetch)
	if err != nil {
		return t, errors.Wrapf(err, "fetch %s", name)
	}
	t.JobsFetched = len(raw)

	posts := o.normalizer.NormalizeAll(name, raw, now)
	curr := make([]string, len(posts))
	for i, p := range posts {
		curr[i] = p.JobUID
	}
	diff := Diff(prev, curr)
	removed := o.guardRemovals(name, len(raw), prev, diff.Removed, &t)

	if expired := o.fetchExpired(ctx, entity, prev, curr, &t); len(expired) > 0 {
		removed = Union(removed, expired)
	}

	if o.opts.DryRun {
		t.NewSignals = len(diff.New)
		t.RemovedSignals = len(removed)
		o.logger.Info("[run] %s: dry run, would upsert %d, emit %d NEW_JOB and %d JOB_REMOVED",
			name, len(posts), len(diff.New), len(removed))
		return t, nil
	}

	n, err := o.store.UpsertJobs(ctx, posts)
	if err != nil {
		return t, errors.Wrapf(err, "upsert %s", name)
	}
	t.JobsUpserted = n

	newSignals := o.emitter.NewJobs(name, posts, diff.New, now)
	t.NewSignals = len(newSignals)
	if len(newSignals) > 0 && !o.store.InsertSignals(ctx, newSignals) {
		t.SignalBatchesDropped++
	}

	for _, chunk := range Chunk(removed, o.opts.InactiveBatchSize) {
		res := o.store.MarkInactive(ctx, name, chunk, now)
		t.InactiveChunksFailed += res.Failed
		for _, done := range res.Succeeded {
			signals := o.emitter.RemovedJobs(name, done, now)
			t.RemovedSignals += len(signals)
			if !o.store.InsertSignals(ctx, signals) {
				t.SignalBatchesDropped++
			}
		}
	}

	o.logger.Info("[run] %s: fetched %d | upserted %d | NEW_JOB %d | JOB_REMOVED %d | still active %d",
		name, t.JobsFetched, t.JobsUpserted, t.NewSignals, t.RemovedSignals, len(diff.StillActive))
	return t, nil
}

// fetchExpired lists the previously active ids the source reports as expired
// and that this fetch did not observe. Errors are logged and counted; the
// diff alone still drives removals for the entity.
func (o *Orchestrator) fetchExpired(ctx context.Context, entity models.Entity, prev, curr []string, t *models.RunTotals) []string {
	src, ok := o.source.(scraper.ExpirySource)
	if !ok || !o.opts.ExpiredFeed || len(prev) == 0 {
		return nil
	}

	raw, err := src.FetchExpired(ctx, entity, o.opts.Fetch)
	if err != nil {
		t.ExpiredFetchFailed++
		o.logger.Warn("[run] %s: expired feed failed, relying on the diff: %v", entity.Name, err)
		return nil
	}

	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		ids = append(ids, o.normalizer.UID(entity.Name, r))
	}
	confirmed := ConfirmedExpired(prev, curr, ids)
	t.ExpiredConfirmed = len(confirmed)
	o.logger.Info("[run] %s: expired feed listed %d, %d of them active and unseen", entity.Name, len(raw), len(confirmed))
	return confirmed
}

// guardRemovals decides which removed ids are acted on. A fetch that came back
// at the MaxJobs cap is probably truncated, so its unseen ids are held back
// unless RemoveOnTruncated is set. An empty fetch is trusted but loudly.
func (o *Orchestrator) guardRemovals(name string, fetched int, prev, removed []string, t *models.RunTotals) []string {
	if len(removed) == 0 {
		return nil
	}
	if fetched == 0 {
		o.logger.Warn("[run] %s: fetch returned nothing, all %d active postings will be marked removed", name, len(prev))
		return removed
	}
	if limit := o.opts.Fetch.MaxJobs; limit > 0 && fetched >= limit && !o.opts.RemoveOnTruncated {
		o.logger.Warn("[run] %s: fetch hit the %d record cap, holding back %d removals (set REMOVE_ON_TRUNCATED=true to apply them)",
			name, limit, len(removed))
		t.RemovalsDeferred++
		return nil
	}
	return removed
}
