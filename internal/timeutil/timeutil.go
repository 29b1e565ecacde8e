// Package timeutil converts between the ISO-8601 strings used on the wire
// and in file names, and the UNIX timestamps the device logs internally.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// ISODate is the layout used for day-archive file names and CLI day flags.
const ISODate = "2006-01-02"

// NoTZ is an ISO-8601 date-time without a zone suffix.
const NoTZ = "2006-01-02T15:04:05"

var naiveLayouts = []string{
	NoTZ,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	ISODate,
}

func parseIn(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	// Strings carrying an explicit offset keep it.
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date/time %q", s)
}

// ParseLocal parses an ISO-8601 date or date-time string. Naive strings
// (no zone offset) are interpreted in the local zone.
func ParseLocal(s string) (time.Time, error) {
	return parseIn(s, time.Local)
}

// ParseUTC parses an ISO-8601 date or date-time string. Naive strings are
// interpreted as UTC.
func ParseUTC(s string) (time.Time, error) {
	return parseIn(s, time.UTC)
}

// Format returns t as an RFC3339 string, offset included.
func Format(t time.Time) string {
	return t.Format(time.RFC3339)
}

// FormatNoTZ returns t as an ISO-8601 date-time without a zone suffix,
// in t's own zone.
func FormatNoTZ(t time.Time) string {
	return t.Format(NoTZ)
}

// TimestampLocal renders a UNIX timestamp as a local-time string without
// a zone suffix.
func TimestampLocal(ts int64) string {
	return FormatNoTZ(time.Unix(ts, 0).Local())
}

// DayStart returns midnight of t's calendar day, in t's zone.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DayEnd returns 23:59:59 of t's calendar day, in t's zone.
func DayEnd(t time.Time) time.Time {
	return DayStart(t).AddDate(0, 0, 1).Add(-time.Second)
}

// NextDay returns midnight of the day after t.
func NextDay(t time.Time) time.Time {
	return DayStart(t).AddDate(0, 0, 1)
}

// SameDay reports whether a and b fall on the same calendar day once both
// are viewed in a's zone.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
