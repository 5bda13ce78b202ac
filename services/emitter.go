package services

import (
	"fmt"
	"time"

	"job-signals/models"
)

// Strength scores per signal kind. New postings outrank removals.
const (
	NewJobStrength     = 40
	RemovedJobStrength = 25
)

// Emitter builds change signals for state transitions.
type Emitter struct{}

// NewJob builds the NEW_JOB signal for a freshly observed post.
func (Emitter) NewJob(entity string, post models.JobPost, at time.Time) models.Signal {
	title := fmt.Sprintf("%s posted: %s", entity, post.Title)
	var loc any
	if post.Location != nil {
		title += fmt.Sprintf(" (%s)", *post.Location)
		loc = *post.Location
	}

	var src *string
	if post.SourceURL != "" {
		u := post.SourceURL
		src = &u
	}

	return models.Signal{
		AccountName:   entity,
		Kind:          models.SignalNewJob,
		Title:         title,
		OccurredAt:    at.UTC(),
		StrengthScore: NewJobStrength,
		SourceURL:     src,
		JobUID:        post.JobUID,
		Metadata: map[string]any{
			"job_uid":  post.JobUID,
			"title":    post.Title,
			"location": loc,
		},
	}
}

// Removed builds the JOB_REMOVED signal for an id that disappeared. Only the
// id is known at this point, so it is all the title carries.
func (Emitter) Removed(entity, jobUID string, at time.Time) models.Signal {
	return models.Signal{
		AccountName:   entity,
		Kind:          models.SignalJobRemoved,
		Title:         fmt.Sprintf("%s job removed/expired: %s", entity, jobUID),
		OccurredAt:    at.UTC(),
		StrengthScore: RemovedJobStrength,
		JobUID:        jobUID,
		Metadata:      map[string]any{"job_uid": jobUID},
	}
}

// NewJobs builds one NEW_JOB signal per post whose id is in ids, following ids order.
func (e Emitter) NewJobs(entity string, posts []models.JobPost, ids []string, at time.Time) []models.Signal {
	byUID := make(map[string]models.JobPost, len(posts))
	for _, p := range posts {
		byUID[p.JobUID] = p
	}

	out := make([]models.Signal, 0, len(ids))
	for _, id := range ids {
		if p, ok := byUID[id]; ok {
			out = append(out, e.NewJob(entity, p, at))
		}
	}
	return out
}

// RemovedJobs builds one JOB_REMOVED signal per id.
func (e Emitter) RemovedJobs(entity string, ids []string, at time.Time) []models.Signal {
	out := make([]models.Signal, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.Removed(entity, id, at))
	}
	return out
}
