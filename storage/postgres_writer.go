package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"

	"job-signals/models"
)

const upsertBatchSize = 100

// PostgresWriter stores job posts and signals in PostgreSQL.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, optionally runs schema
// migrations, and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string, migrate bool) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: open")
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, errors.Wrap(ctx.Err(), "postgres: ping")
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "postgres: ping failed after retries")
	}

	pw := NewPostgresWriterWithDB(db)
	if migrate {
		if err := pw.migrate(ctx); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "postgres: migrate")
		}
	}
	return pw, nil
}

// NewPostgresWriterWithDB wraps an existing handle without touching the schema.
func NewPostgresWriterWithDB(db *sql.DB) *PostgresWriter {
	return &PostgresWriter{db: db}
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS job_posts (
			job_uid       TEXT        PRIMARY KEY,
			company       TEXT        NOT NULL,
			source        TEXT        NOT NULL DEFAULT '',
			source_url    TEXT        NOT NULL DEFAULT '',
			title         TEXT        NOT NULL,
			location      TEXT,
			country       TEXT,
			department    TEXT,
			posted_at     TIMESTAMPTZ,
			first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			is_active     BOOLEAN     NOT NULL DEFAULT TRUE,
			metadata      JSONB       NOT NULL DEFAULT '{}'::jsonb
		);

		CREATE INDEX IF NOT EXISTS idx_job_posts_company_active ON job_posts(company, is_active);

		CREATE TABLE IF NOT EXISTS signals (
			id             BIGSERIAL   PRIMARY KEY,
			account_name   TEXT        NOT NULL,
			signal_type    TEXT        NOT NULL,
			title          TEXT        NOT NULL,
			occurred_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			strength_score INTEGER     NOT NULL DEFAULT 0,
			source_url     TEXT,
			metadata       JSONB       NOT NULL DEFAULT '{}'::jsonb,
			job_uid        TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_signals_account ON signals(account_name, signal_type);
	`)
	return err
}

// ActiveJobUIDs returns the active job_uids of company in lexical order.
func (pw *PostgresWriter) ActiveJobUIDs(ctx context.Context, company string, limit int) ([]string, error) {
	rows, err := pw.db.QueryContext(ctx, `
		SELECT job_uid
		FROM job_posts
		WHERE company = $1 AND is_active = TRUE
		ORDER BY job_uid
		LIMIT $2
	`, company, limit)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: active job uids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "postgres: scan job uid")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertJobs batch-upserts posts keyed by job_uid.
func (pw *PostgresWriter) UpsertJobs(ctx context.Context, posts []models.JobPost) (int, error) {
	total := 0
	for i := 0; i < len(posts); i += upsertBatchSize {
		end := i + upsertBatchSize
		if end > len(posts) {
			end = len(posts)
		}

		query, args := buildJobUpsert(posts[i:end], dollarPlaceholder, func(t time.Time) any { return t })
		res, err := pw.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, errors.Wrap(err, "postgres: upsert job posts")
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}

// MarkInactive deactivates the given job_uids of company.
func (pw *PostgresWriter) MarkInactive(ctx context.Context, company string, jobUIDs []string, at time.Time) error {
	if len(jobUIDs) == 0 {
		return nil
	}
	_, err := pw.db.ExecContext(ctx, `
		UPDATE job_posts
		SET is_active = FALSE, last_seen_at = $1
		WHERE company = $2 AND job_uid = ANY($3)
	`, at.UTC(), company, pq.Array(jobUIDs))
	if err != nil {
		return errors.Wrap(err, "postgres: mark inactive")
	}
	return nil
}

// InsertSignals appends rows to table. An undefined column comes back as
// *UnknownColumnError.
func (pw *PostgresWriter) InsertSignals(ctx context.Context, table string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	query, args := buildInsert(table, rowColumns(rows), rows, dollarPlaceholder)
	if _, err := pw.db.ExecContext(ctx, query, args...); err != nil {
		return unknownColumnFromPQ(table, err)
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
