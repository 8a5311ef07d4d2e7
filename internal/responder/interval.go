package responder

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Interval is the half-open range [Min, Max) poll delays are drawn from.
type Interval struct {
	Min time.Duration
	Max time.Duration
}

// DefaultInterval waits between 45 and 120 seconds.
var DefaultInterval = Interval{Min: 45 * time.Second, Max: 120 * time.Second}

// Validate checks that the range is positive and non-empty.
func (i Interval) Validate() error {
	if i.Min <= 0 {
		return fmt.Errorf("poll interval minimum must be positive, got %s", i.Min)
	}
	if i.Max <= i.Min {
		return fmt.Errorf("poll interval maximum (%s) must be greater than minimum (%s)", i.Max, i.Min)
	}
	return nil
}

// Next draws a uniformly distributed delay in [Min, Max).
// A nil r uses the global source.
func (i Interval) Next(r *rand.Rand) time.Duration {
	span := int64(i.Max - i.Min)
	if r == nil {
		return i.Min + time.Duration(rand.Int64N(span))
	}
	return i.Min + time.Duration(r.Int64N(span))
}
