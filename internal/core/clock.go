package core

import "time"

// Clock abstracts the caller's notion of "now" so date defaulting can be
// tested against a fixed day.
type Clock interface {
	Now() time.Time
	Today() Date
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// FixedClock always reports the same instant. Test helper.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time { return c.Instant }

func (c FixedClock) Today() Date {
	t := c.Instant.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}
