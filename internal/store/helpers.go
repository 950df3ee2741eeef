package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// TimeLayout is a fixed-width UTC layout so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NullableTime returns nil for the zero time so the column stores NULL.
func NullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return FormatTime(t)
}

// ParseTime accepts TimeLayout, RFC3339Nano, and SQLite's default datetime format.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(TimeLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// NullTime converts a nullable column into a time, zero when NULL or unparsable.
func NullTime(value sql.NullString) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	t, err := ParseTime(value.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NullableString returns nil for empty strings.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// Placeholders returns "?,?,?" with count markers.
func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

// IsUniqueViolation reports whether err is a UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	// SQLITE_CONSTRAINT_UNIQUE (2067) and SQLITE_CONSTRAINT_PRIMARYKEY (1555)
	if errors.As(err, &coder) && (coder.Code() == 2067 || coder.Code() == 1555) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
