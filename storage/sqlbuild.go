package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"job-signals/models"
)

// placeholderFunc renders the n-th (1-based) bind parameter.
type placeholderFunc func(n int) string

func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }
func questionPlaceholder(int) string { return "?" }

// rowColumns returns the sorted key set of the first row.
func rowColumns(rows []map[string]any) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// buildInsert renders a multi-row INSERT for rows over cols. Column names are
// quoted; values are bound.
func buildInsert(table string, cols []string, rows []map[string]any, ph placeholderFunc) (string, []any) {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}

	valueStrings := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*len(cols))
	n := 0
	for _, row := range rows {
		marks := make([]string, len(cols))
		for i, c := range cols {
			n++
			marks[i] = ph(n)
			args = append(args, row[c])
		}
		valueStrings = append(valueStrings, "("+strings.Join(marks, ",")+")")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(valueStrings, ","))
	return query, args
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// jobColumns is the column order used by job upserts.
var jobColumns = []string{
	"job_uid", "company", "source", "source_url", "title", "location", "country",
	"department", "posted_at", "first_seen_at", "last_seen_at", "is_active", "metadata",
}

// jobUpsertConflict refreshes everything except first_seen_at, which keeps the
// value from the first insert. posted_at and department are only replaced by
// non-null values.
const jobUpsertConflict = `
ON CONFLICT (job_uid) DO UPDATE SET
	company      = excluded.company,
	source       = excluded.source,
	source_url   = excluded.source_url,
	title        = excluded.title,
	location     = excluded.location,
	country      = excluded.country,
	department   = COALESCE(excluded.department, job_posts.department),
	posted_at    = COALESCE(excluded.posted_at, job_posts.posted_at),
	last_seen_at = excluded.last_seen_at,
	is_active    = excluded.is_active,
	metadata     = excluded.metadata`

// buildJobUpsert renders a multi-row upsert into job_posts. timeValue converts
// timestamps into whatever the driver stores best.
func buildJobUpsert(posts []models.JobPost, ph placeholderFunc, timeValue func(time.Time) any) (string, []any) {
	rows := make([]map[string]any, len(posts))
	for i, p := range posts {
		var posted any
		if p.PostedAt != nil {
			posted = timeValue(p.PostedAt.UTC())
		}
		rows[i] = map[string]any{
			"job_uid":       p.JobUID,
			"company":       p.Company,
			"source":        p.Source,
			"source_url":    p.SourceURL,
			"title":         p.Title,
			"location":      nullableString(p.Location),
			"country":       nullableString(p.Country),
			"department":    nullableString(p.Department),
			"posted_at":     posted,
			"first_seen_at": timeValue(p.FirstSeenAt.UTC()),
			"last_seen_at":  timeValue(p.LastSeenAt.UTC()),
			"is_active":     p.IsActive,
			"metadata":      string(p.MetadataJSON()),
		}
	}
	query, args := buildInsert("job_posts", jobColumns, rows, ph)
	return query + jobUpsertConflict, args
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
