package data

import "time"

// Clock supplies the timestamps repositories write so tests can pin them.
type Clock func() time.Time

// SystemClock reports the current time in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// FixedClock always reports t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
