// Package sqlite implements the repository interfaces on an embedded SQLite
// database. Timestamps are stored as unix seconds.
package sqlite

import (
	"context"
	"database/sql"
	"time"
)

type scanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func toUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Unix()
}

func fromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nowUnix() int64 {
	return time.Now().UTC().Unix()
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// optString flattens a nullable string to a driver value.
func optString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
