package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"job-signals/models"
)

// CSVWriter appends emitted signals to a CSV audit file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

var csvHeader = []string{
	"occurred_at", "account_name", "signal_type", "job_uid", "strength_score", "title", "source_url",
}

// NewCSVWriter opens the CSV file at path for appending, writing the header
// row when the file is new. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "csv: create output dir")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "csv: open file %q", path)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "csv: stat")
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "csv: write header")
		}
		w.Flush()
	}

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteSignals appends one row per signal.
func (c *CSVWriter) WriteSignals(signals []models.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range signals {
		src := ""
		if s.SourceURL != nil {
			src = *s.SourceURL
		}
		row := []string{
			s.OccurredAt.UTC().Format(time.RFC3339),
			s.AccountName,
			string(s.Kind),
			s.JobUID,
			strconv.Itoa(s.StrengthScore),
			s.Title,
			src,
		}
		if err := c.writer.Write(row); err != nil {
			return errors.Wrap(err, "csv: write row")
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
