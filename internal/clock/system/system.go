// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements catalog.Clock with the UTC wall time.
type Clock struct{}

// New returns a wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Since is the elapsed time from t to Now.
func (c Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}
