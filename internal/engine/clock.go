package engine

import "time"

// Clock supplies the current time to the engine.  Expiry arithmetic never
// calls time.Now directly so tests can drive lock expiry deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns a Clock backed by the wall clock in UTC.
func SystemClock() Clock { return systemClock{} }
