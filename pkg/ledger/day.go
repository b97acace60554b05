package ledger

import "time"

// DaySeconds is the length of one accounting day bucket.
const DaySeconds = 86400

// DayFromTime returns the day bucket for a wall-clock instant.
// floor(unix / DaySeconds); deterministic for a given timestamp.
func DayFromTime(t time.Time) int64 {
	return t.Unix() / DaySeconds
}

// DayStart returns the instant a day bucket begins.
func DayStart(day int64) time.Time {
	return time.Unix(day*DaySeconds, 0).UTC()
}
