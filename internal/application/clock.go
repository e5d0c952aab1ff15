package application

import "time"

// Clock lets services stamp records without reaching for time.Now directly.
type Clock interface {
	Now() time.Time
}

// SystemClock reports wall-clock time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always reports the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// ModelVersionAt formats t as a model version tag (yyyyMMddHHmmss).
func ModelVersionAt(t time.Time) string {
	return t.UTC().Format("20060102150405")
}
