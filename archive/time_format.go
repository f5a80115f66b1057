package archive

import (
	"math"
	"time"
)

// UnixTime converts export timestamps (unix seconds, fractional) to time.Time.
// Nil and non-positive values are treated as unset and yield the zero time, so
// downstream artifacts never show 1970-era dates.
func UnixTime(ts *float64) time.Time {
	if ts == nil || *ts <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(*ts)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// ISO8601 formats an export timestamp as RFC 3339, or "" when unset.
func ISO8601(ts *float64) string {
	t := UnixTime(ts)
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
