// Package repositories holds the SQLite-backed stores for the client's local
// data. Timestamps are persisted as INTEGER microseconds since the epoch.
package repositories

import (
	"database/sql"
	"time"
)

func ToMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func FromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

// NullMicros maps a nil time to SQL NULL.
func NullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}

func FromNullMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := FromMicros(v.Int64)
	return &t
}
