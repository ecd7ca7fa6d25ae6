package db

import (
	"time"

	"cloud.google.com/go/civil"
)

// Today returns the current UTC calendar date.
func Today(now time.Time) civil.Date {
	return civil.DateOf(now.UTC())
}

// DateArg converts a date for a DATE query argument. pgx has no codec for
// civil.Date, so dates travel as midnight UTC.
func DateArg(d civil.Date) time.Time {
	return d.In(time.UTC)
}

// NullDateArg is DateArg for a nullable column.
func NullDateArg(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := DateArg(*d)
	return &t
}

// ScanDate converts a scanned nullable DATE column.
func ScanDate(t *time.Time) *civil.Date {
	if t == nil {
		return nil
	}
	d := civil.DateOf(*t)
	return &d
}
