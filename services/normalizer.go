package services

import (
	"strings"
	"time"
	"unicode"

	"job-signals/models"
	"job-signals/utils"
)

// DefaultTitle stands in for postings the feed returned without a title.
const DefaultTitle = "(no title)"

// dateLayouts are tried in order when parsing upstream timestamps.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Normalizer maps raw upstream postings into JobPost records.
type Normalizer struct {
	source string
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer stamping records with the given source name.
func NewNormalizer(source string, logger *utils.Logger) *Normalizer {
	return &Normalizer{source: source, logger: logger}
}

// Normalize converts one raw posting observed at now.
func (n *Normalizer) Normalize(entity string, r models.RawJob, now time.Time) models.JobPost {
	now = now.UTC()

	title := normaliseText(r.Title)
	if title == "" {
		title = DefaultTitle
	}

	url := strings.TrimSpace(r.URL)

	return models.JobPost{
		JobUID:      n.UID(entity, r),
		Company:     entity,
		Source:      n.source,
		SourceURL:   url,
		Title:       title,
		Location:    firstLocation(r.Locations),
		Country:     firstCountry(r.Countries),
		PostedAt:    n.parseTime(r.DatePosted),
		FirstSeenAt: now,
		LastSeenAt:  now,
		IsActive:    true,
		Metadata:    rawMetadata(r),
	}
}

// UID derives the job_uid a raw posting is stored under.
func (n *Normalizer) UID(entity string, r models.RawJob) string {
	return JobUID(entity, r.ID, strings.TrimSpace(r.URL))
}

// NormalizeAll converts a whole fetch. Records sharing a job_uid collapse into
// one (the later record wins) so a single upsert batch never repeats a key.
func (n *Normalizer) NormalizeAll(entity string, raw []models.RawJob, now time.Time) []models.JobPost {
	out := make([]models.JobPost, 0, len(raw))
	index := make(map[string]int, len(raw))

	for _, r := range raw {
		post := n.Normalize(entity, r, now)
		if i, dup := index[post.JobUID]; dup {
			n.logger.Debug("[normalizer] %s: duplicate job_uid %s in fetch, keeping latest", entity, post.JobUID)
			out[i] = post
			continue
		}
		index[post.JobUID] = len(out)
		out = append(out, post)
	}

	if dropped := len(raw) - len(out); dropped > 0 {
		n.logger.Info("[normalizer] %s: %d raw -> %d posts (%d duplicates collapsed)",
			entity, len(raw), len(out), dropped)
	}
	return out
}

// parseTime reads an upstream date leniently; anything unparseable becomes nil.
func (n *Normalizer) parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	n.logger.Debug("[normalizer] unparseable date %q, storing null", raw)
	return nil
}

func firstLocation(locs []models.LocationCandidate) *string {
	if len(locs) == 0 {
		return nil
	}
	first := locs[0]
	var parts []string
	for _, p := range []string{first.City, first.Admin, first.Country} {
		if p = normaliseText(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	loc := strings.Join(parts, ", ")
	return &loc
}

func firstCountry(countries []string) *string {
	if len(countries) == 0 {
		return nil
	}
	c := normaliseText(countries[0])
	if c == "" {
		return nil
	}
	return &c
}

func rawMetadata(r models.RawJob) map[string]any {
	return map[string]any{
		"organization":        r.Organization,
		"source":              r.Source,
		"source_domain":       r.SourceDomain,
		"source_type":         r.SourceType,
		"date_created":        r.DateCreated,
		"locations_derived":   r.Locations,
		"countries_derived":   r.Countries,
		"remote_derived":      r.RemoteDerived,
		"ai_taxonomies_a":     r.AITaxonomies,
		"ai_work_arrangement": r.AIWorkArrangement,
	}
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
