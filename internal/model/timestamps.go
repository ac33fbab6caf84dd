package model

import "time"

// Now returns the current UTC time at microsecond precision, the finest
// resolution every backend stores.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NextUpdatedAt returns the updated_at value for a modification of a record
// last modified at prev. The result is always strictly after prev.
func NextUpdatedAt(prev time.Time) time.Time {
	now := Now()
	if !now.After(prev) {
		return prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return now
}
