package model

import "time"

// timestampLayout matches JavaScript's Date.prototype.toISOString, which
// older clients used for createdAt: UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t the way createdAt values are stored.
//
// createdAt stays a plain string on the records. Documents in the wild hold
// date-only and empty values, and one odd record must not make the whole
// document unreadable.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// CreatedDate returns the date part of a createdAt value for display, or
// the value unchanged when it has no recognisable date prefix.
func CreatedDate(createdAt string) string {
	if len(createdAt) >= 10 {
		if _, err := time.Parse(time.DateOnly, createdAt[:10]); err == nil {
			return createdAt[:10]
		}
	}
	return createdAt
}
