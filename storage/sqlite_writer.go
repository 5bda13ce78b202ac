package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"job-signals/models"
)

// SQLiteWriter stores job posts and signals in a local SQLite file. It is the
// zero-infrastructure backend for development and single-machine runs.
type SQLiteWriter struct {
	db *sql.DB
}

// NewSQLiteWriter opens (or creates) the database at path and migrates it.
// Use ":memory:" for a throwaway database.
func NewSQLiteWriter(ctx context.Context, path string, migrate bool) (*SQLiteWriter, error) {
	// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open")
	}
	// sqlite wants a single writer; this also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite: ping")
	}

	sw := &SQLiteWriter{db: db}
	if migrate {
		if err := sw.migrate(ctx); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "sqlite: migrate")
		}
	}
	return sw, nil
}

func (sw *SQLiteWriter) migrate(ctx context.Context) error {
	tx, err := sw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= 1 {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS job_posts (
  job_uid       TEXT PRIMARY KEY,
  company       TEXT NOT NULL,
  source        TEXT NOT NULL DEFAULT '',
  source_url    TEXT NOT NULL DEFAULT '',
  title         TEXT NOT NULL,
  location      TEXT,
  country       TEXT,
  department    TEXT,
  posted_at     TEXT,
  first_seen_at TEXT NOT NULL,
  last_seen_at  TEXT NOT NULL,
  is_active     INTEGER NOT NULL DEFAULT 1,
  metadata      TEXT NOT NULL DEFAULT '{}'
);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
CREATE INDEX IF NOT EXISTS idx_job_posts_company_active
ON job_posts(company, is_active);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS signals (
  id             INTEGER PRIMARY KEY AUTOINCREMENT,
  account_name   TEXT NOT NULL,
  signal_type    TEXT NOT NULL,
  title          TEXT NOT NULL,
  occurred_at    TEXT NOT NULL,
  strength_score INTEGER NOT NULL DEFAULT 0,
  source_url     TEXT,
  metadata       TEXT NOT NULL DEFAULT '{}',
  job_uid        TEXT
);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `PRAGMA user_version = 1;`); err != nil {
		return err
	}
	return tx.Commit()
}

// ActiveJobUIDs returns the active job_uids of company in lexical order.
func (sw *SQLiteWriter) ActiveJobUIDs(ctx context.Context, company string, limit int) ([]string, error) {
	rows, err := sw.db.QueryContext(ctx, `
SELECT job_uid
FROM job_posts
WHERE company = ? AND is_active = 1
ORDER BY job_uid
LIMIT ?;`, company, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: active job uids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "sqlite: scan job uid")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertJobs upserts posts keyed by job_uid inside one transaction.
func (sw *SQLiteWriter) UpsertJobs(ctx context.Context, posts []models.JobPost) (int, error) {
	tx, err := sw.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "sqlite: begin upsert")
	}
	defer func() { _ = tx.Rollback() }()

	total := 0
	for i := 0; i < len(posts); i += upsertBatchSize {
		end := i + upsertBatchSize
		if end > len(posts) {
			end = len(posts)
		}
		query, args := buildJobUpsert(posts[i:end], questionPlaceholder, sqliteTime)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, errors.Wrap(err, "sqlite: upsert job posts")
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "sqlite: commit upsert")
	}
	return total, nil
}

// MarkInactive deactivates the given job_uids of company.
func (sw *SQLiteWriter) MarkInactive(ctx context.Context, company string, jobUIDs []string, at time.Time) error {
	if len(jobUIDs) == 0 {
		return nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(jobUIDs)), ",")
	args := make([]any, 0, len(jobUIDs)+2)
	args = append(args, sqliteTime(at), company)
	for _, id := range jobUIDs {
		args = append(args, id)
	}

	_, err := sw.db.ExecContext(ctx, `
UPDATE job_posts
SET is_active = 0, last_seen_at = ?
WHERE company = ? AND job_uid IN (`+marks+`);`, args...)
	if err != nil {
		return errors.Wrap(err, "sqlite: mark inactive")
	}
	return nil
}

// InsertSignals appends rows to table. "has no column named" errors come back
// as *UnknownColumnError.
func (sw *SQLiteWriter) InsertSignals(ctx context.Context, table string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	converted := make([]map[string]any, len(rows))
	for i, row := range rows {
		c := make(map[string]any, len(row))
		for k, v := range row {
			if t, ok := v.(time.Time); ok {
				v = sqliteTime(t)
			}
			c[k] = v
		}
		converted[i] = c
	}

	query, args := buildInsert(table, rowColumns(converted), converted, questionPlaceholder)
	if _, err := sw.db.ExecContext(ctx, query, args...); err != nil {
		return unknownColumnFromSQLite(table, err)
	}
	return nil
}

// DB exposes the handle for inspection queries.
func (sw *SQLiteWriter) DB() *sql.DB { return sw.db }

func (sw *SQLiteWriter) Close() error {
	return sw.db.Close()
}

func sqliteTime(t time.Time) any {
	return t.UTC().Format(time.RFC3339Nano)
}
