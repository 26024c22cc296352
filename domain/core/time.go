package core

import (
	"time"
)

// Now returns the current UTC time without a monotonic reading, so values survive
// a JSON round trip unchanged.
func Now() time.Time {
	return time.Now().UTC().Round(0).Truncate(time.Microsecond)
}
