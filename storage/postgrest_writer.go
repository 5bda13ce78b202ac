package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"job-signals/models"
)

// PostgRESTWriter talks to a PostgREST endpoint such as Supabase's /rest/v1.
// The schema is whatever the remote project has; nothing is migrated.
type PostgRESTWriter struct {
	base string
	key  string
	hc   *http.Client
}

// PostgRESTError is a non-2xx response from PostgREST.
type PostgRESTError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *PostgRESTError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("postgrest %d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("postgrest %d: %s", e.Status, msg)
}

// NewPostgRESTWriter targets projectURL (e.g. https://xyz.supabase.co) with a service key.
func NewPostgRESTWriter(projectURL, serviceKey string) *PostgRESTWriter {
	return &PostgRESTWriter{
		base: strings.TrimRight(projectURL, "/") + "/rest/v1",
		key:  serviceKey,
		hc:   &http.Client{Timeout: 120 * time.Second},
	}
}

// ActiveJobUIDs returns the active job_uids of company.
func (w *PostgRESTWriter) ActiveJobUIDs(ctx context.Context, company string, limit int) ([]string, error) {
	q := url.Values{}
	q.Set("select", "job_uid")
	q.Set("company", "eq."+company)
	q.Set("is_active", "eq.true")
	q.Set("order", "job_uid")
	q.Set("limit", strconv.Itoa(limit))

	var rows []struct {
		JobUID string `json:"job_uid"`
	}
	if err := w.do(ctx, http.MethodGet, "job_posts", q, nil, "", &rows); err != nil {
		return nil, errors.Wrap(err, "postgrest: active job uids")
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.JobUID)
	}
	return ids, nil
}

// UpsertJobs writes posts in two requests. The first inserts with
// first_seen_at and ignore-duplicates, so only unknown job_uids land and
// they carry their first sighting whether or not the remote column has a
// default. The second merges every post without first_seen_at, so rows
// that already existed keep theirs.
func (w *PostgRESTWriter) UpsertJobs(ctx context.Context, posts []models.JobPost) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	fresh := make([]map[string]any, len(posts))
	merge := make([]map[string]any, len(posts))
	for i, p := range posts {
		merge[i] = jobPayload(p)
		fresh[i] = jobPayload(p)
		fresh[i]["first_seen_at"] = p.FirstSeenAt.UTC().Format(time.RFC3339)
	}

	q := url.Values{}
	q.Set("on_conflict", "job_uid")
	if err := w.do(ctx, http.MethodPost, "job_posts", q, fresh,
		"resolution=ignore-duplicates,return=minimal", nil); err != nil {
		return 0, errors.Wrap(err, "postgrest: insert new job posts")
	}

	var written []json.RawMessage
	if err := w.do(ctx, http.MethodPost, "job_posts", q, merge,
		"resolution=merge-duplicates,return=representation", &written); err != nil {
		return 0, errors.Wrap(err, "postgrest: upsert job posts")
	}
	return len(written), nil
}

func jobPayload(p models.JobPost) map[string]any {
	var posted any
	if p.PostedAt != nil {
		posted = p.PostedAt.UTC().Format(time.RFC3339)
	}
	return map[string]any{
		"job_uid":      p.JobUID,
		"company":      p.Company,
		"source":       p.Source,
		"source_url":   p.SourceURL,
		"title":        p.Title,
		"location":     p.Location,
		"country":      p.Country,
		"department":   p.Department,
		"posted_at":    posted,
		"last_seen_at": p.LastSeenAt.UTC().Format(time.RFC3339),
		"is_active":    p.IsActive,
		"metadata":     p.Metadata,
	}
}

// MarkInactive PATCHes the given job_uids of company.
func (w *PostgRESTWriter) MarkInactive(ctx context.Context, company string, jobUIDs []string, at time.Time) error {
	if len(jobUIDs) == 0 {
		return nil
	}
	quoted := make([]string, len(jobUIDs))
	for i, id := range jobUIDs {
		quoted[i] = strconv.Quote(id)
	}

	q := url.Values{}
	q.Set("company", "eq."+company)
	q.Set("job_uid", "in.("+strings.Join(quoted, ",")+")")

	patch := map[string]any{
		"is_active":    false,
		"last_seen_at": at.UTC().Format(time.RFC3339),
	}
	if err := w.do(ctx, http.MethodPatch, "job_posts", q, patch, "return=minimal", nil); err != nil {
		return errors.Wrap(err, "postgrest: mark inactive")
	}
	return nil
}

// InsertSignals appends rows to table. Schema-cache misses (PGRST204) and
// undefined columns (42703) come back as *UnknownColumnError.
func (w *PostgRESTWriter) InsertSignals(ctx context.Context, table string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	payload := make([]map[string]any, len(rows))
	for i, row := range rows {
		c := make(map[string]any, len(row))
		for k, v := range row {
			switch tv := v.(type) {
			case time.Time:
				v = tv.UTC().Format(time.RFC3339)
			case string:
				// metadata arrives pre-encoded; send it as a JSON object, not a string
				if k == "metadata" && json.Valid([]byte(tv)) {
					v = json.RawMessage(tv)
				}
			}
			c[k] = v
		}
		payload[i] = c
	}

	err := w.do(ctx, http.MethodPost, table, nil, payload, "return=minimal", nil)
	var pgErr *PostgRESTError
	if errors.As(err, &pgErr) {
		return unknownColumnFromPostgREST(table, pgErr.Code, pgErr.Message, err)
	}
	return err
}

func (w *PostgRESTWriter) Close() error {
	w.hc.CloseIdleConnections()
	return nil
}

func (w *PostgRESTWriter) do(ctx context.Context, method, resource string, q url.Values, body any, prefer string, out any) error {
	u := w.base + "/" + resource
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode body")
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", w.key)
	req.Header.Set("Authorization", "Bearer "+w.key)
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := w.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		pgErr := &PostgRESTError{Status: resp.StatusCode}
		if jerr := json.Unmarshal(b, pgErr); jerr != nil || pgErr.Message == "" {
			pgErr.Message = strings.TrimSpace(string(b))
		}
		return pgErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
