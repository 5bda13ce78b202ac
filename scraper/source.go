package scraper

import (
	"context"

	"job-signals/models"
)

// FetchParams bounds one fetch for one entity.
type FetchParams struct {
	TimeRange       string // "1h", "24h", "7d"
	MaxJobs         int
	IncludeAI       bool
	IncludeLinkedIn bool
}

// Source returns the current snapshot of postings for an entity.
type Source interface {
	Name() string
	Fetch(ctx context.Context, entity models.Entity, p FetchParams) ([]models.RawJob, error)
}

// ExpirySource is a Source that can also list the postings its upstream has
// flagged as expired for an entity.
type ExpirySource interface {
	Source
	FetchExpired(ctx context.Context, entity models.Entity, p FetchParams) ([]models.RawJob, error)
}
