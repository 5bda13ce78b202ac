package storage

import (
	"fmt"
	"regexp"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
)

// UnknownColumnError reports that the backend rejected a write because the
// named column does not exist in its schema.
type UnknownColumnError struct {
	Table  string
	Column string
	Err    error
}

func (e *UnknownColumnError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("unknown column %q on %q: %v", e.Column, e.Table, e.Err)
	}
	return fmt.Sprintf("unknown column %q: %v", e.Column, e.Err)
}

func (e *UnknownColumnError) Unwrap() error { return e.Err }

// pgUndefinedColumn is the Postgres SQLSTATE for undefined_column.
const pgUndefinedColumn = "42703"

var (
	pgColumnRe     = regexp.MustCompile(`column "([^"]+)"(?: of relation "([^"]+)")? does not exist`)
	sqliteColumnRe = regexp.MustCompile(`table (\S+) has no column named (\S+)`)
	postgrestColRe = regexp.MustCompile(`Could not find the '([^']+)' column of '([^']+)'`)
)

// unknownColumnFromPQ converts a lib/pq undefined_column error.
func unknownColumnFromPQ(table string, err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pgUndefinedColumn {
		return err
	}
	if col, _ := parsePGColumn(pqErr.Message); col != "" {
		return &UnknownColumnError{Table: table, Column: col, Err: err}
	}
	if pqErr.Column != "" {
		return &UnknownColumnError{Table: table, Column: pqErr.Column, Err: err}
	}
	return err
}

// unknownColumnFromSQLite converts "table X has no column named Y".
func unknownColumnFromSQLite(table string, err error) error {
	m := sqliteColumnRe.FindStringSubmatch(err.Error())
	if m == nil {
		return err
	}
	return &UnknownColumnError{Table: table, Column: m[2], Err: err}
}

// unknownColumnFromPostgREST converts a PostgREST error body. Both the schema
// cache miss (PGRST204) and a passed-through 42703 are recognised.
func unknownColumnFromPostgREST(table, code, message string, err error) error {
	switch code {
	case "PGRST204":
		if m := postgrestColRe.FindStringSubmatch(message); m != nil {
			return &UnknownColumnError{Table: table, Column: m[1], Err: err}
		}
	case pgUndefinedColumn:
		if col, _ := parsePGColumn(message); col != "" {
			return &UnknownColumnError{Table: table, Column: col, Err: err}
		}
	}
	return err
}

func parsePGColumn(msg string) (column, relation string) {
	m := pgColumnRe.FindStringSubmatch(msg)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}
