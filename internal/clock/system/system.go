// Package system supplies the wall clock used for post timestamps.
package system

import "time"

// Clock satisfies gazette.Clock.
type Clock struct{}

// New returns a wall clock.
func New() *Clock {
	return &Clock{}
}

// Now reports the current UTC time at millisecond precision, the finest
// resolution both BSON dates and the postgres store keep.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
