package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"job-signals/models"
)

func TestPostgRESTInsertSignalsSchemaCacheMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/signals" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("apikey") != "svc" || r.Header.Get("Authorization") != "Bearer svc" {
			t.Errorf("auth headers missing")
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"PGRST204","message":"Could not find the 'job_uid' column of 'signals' in the schema cache"}`)
	}))
	defer srv.Close()

	pw := NewPostgRESTWriter(srv.URL, "svc")
	err := pw.InsertSignals(context.Background(), "signals", []map[string]any{testSignals(1)[0].Row()})

	var unknown *UnknownColumnError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownColumnError, got %v", err)
	}
	if unknown.Column != "job_uid" {
		t.Errorf("column = %q; want job_uid", unknown.Column)
	}
}

func TestPostgRESTInsertSignalsSendsMetadataAsObject(t *testing.T) {
	var body []map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	pw := NewPostgRESTWriter(srv.URL, "svc")
	if err := pw.InsertSignals(context.Background(), "signals", []map[string]any{testSignals(1)[0].Row()}); err != nil {
		t.Fatal(err)
	}
	if len(body) != 1 {
		t.Fatalf("rows sent = %d", len(body))
	}
	if md := string(body[0]["metadata"]); !strings.HasPrefix(md, "{") {
		t.Errorf("metadata = %s; want a JSON object", md)
	}
	if at := string(body[0]["occurred_at"]); at != `"2026-01-02T03:04:05Z"` {
		t.Errorf("occurred_at = %s", at)
	}
}

func TestPostgRESTUpsertInsertsNewThenMerges(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.URL.Query().Get("on_conflict"); got != "job_uid" {
			t.Errorf("on_conflict = %q", got)
		}
		var rows []map[string]any
		_ = json.NewDecoder(r.Body).Decode(&rows)

		prefer := r.Header.Get("Prefer")
		switch calls {
		case 1:
			if !strings.Contains(prefer, "resolution=ignore-duplicates") {
				t.Errorf("insert Prefer = %q", prefer)
			}
			for _, row := range rows {
				if row["first_seen_at"] != "2026-03-01T00:00:00Z" {
					t.Errorf("new rows must carry first_seen_at, got %v", row["first_seen_at"])
				}
			}
			w.WriteHeader(http.StatusCreated)
		case 2:
			if !strings.Contains(prefer, "resolution=merge-duplicates") {
				t.Errorf("merge Prefer = %q", prefer)
			}
			for _, row := range rows {
				if _, ok := row["first_seen_at"]; ok {
					t.Error("first_seen_at must not be sent on merge")
				}
			}
			_ = json.NewEncoder(w).Encode(rows)
		default:
			t.Errorf("unexpected request %d", calls)
		}
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	pw := NewPostgRESTWriter(srv.URL+"/", "svc")
	n, err := pw.UpsertJobs(context.Background(), []models.JobPost{
		{JobUID: "a", Company: "Acme", Title: "A", FirstSeenAt: now, LastSeenAt: now, IsActive: true},
		{JobUID: "b", Company: "Acme", Title: "B", FirstSeenAt: now, LastSeenAt: now, IsActive: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || calls != 2 {
		t.Errorf("upserted = %d in %d requests; want 2 in 2", n, calls)
	}
}

func TestPostgRESTUpsertStopsWhenInsertFails(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"23502","message":"null value in column \"title\""}`))
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := NewPostgRESTWriter(srv.URL, "svc").UpsertJobs(context.Background(), []models.JobPost{
		{JobUID: "a", Company: "Acme", FirstSeenAt: now, LastSeenAt: now},
	})
	if err == nil {
		t.Fatal("expected the insert error")
	}
	if calls != 1 {
		t.Errorf("requests = %d; the merge must not run after a failed insert", calls)
	}
}

func TestPostgRESTMarkInactiveFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("company") != "eq.Acme" {
			t.Errorf("company filter = %q", q.Get("company"))
		}
		if q.Get("job_uid") != `in.("u1","u2")` {
			t.Errorf("job_uid filter = %q", q.Get("job_uid"))
		}
		var patch map[string]any
		_ = json.NewDecoder(r.Body).Decode(&patch)
		if patch["is_active"] != false {
			t.Errorf("patch = %v", patch)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pw := NewPostgRESTWriter(srv.URL, "svc")
	if err := pw.MarkInactive(context.Background(), "Acme", []string{"u1", "u2"}, time.Now()); err != nil {
		t.Fatal(err)
	}
}

func TestPostgRESTActiveJobUIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("is_active") != "eq.true" || q.Get("limit") != "50" {
			t.Errorf("query = %v", q)
		}
		_, _ = io.WriteString(w, `[{"job_uid":"u1"},{"job_uid":"u2"}]`)
	}))
	defer srv.Close()

	ids, err := NewPostgRESTWriter(srv.URL, "svc").ActiveJobUIDs(context.Background(), "Acme", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[1] != "u2" {
		t.Errorf("ids = %v", ids)
	}
}

func TestPostgRESTPlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	err := NewPostgRESTWriter(srv.URL, "svc").MarkInactive(context.Background(), "Acme", []string{"u1"}, time.Now())
	var pgErr *PostgRESTError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PostgRESTError, got %v", err)
	}
	if pgErr.Status != http.StatusGatewayTimeout || pgErr.Message != "upstream timeout" {
		t.Errorf("got %+v", pgErr)
	}
}
