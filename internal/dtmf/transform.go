package dtmf

import (
	"fmt"
	"strconv"
)

// IntInRange returns a transform that parses the digits as a decimal integer
// and rejects values outside [lo, hi].
func IntInRange(lo, hi int) TransformFunc {
	return func(raw string) (any, error) {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("not a number: %w", err)
		}
		if n < lo || n > hi {
			return nil, fmt.Errorf("%d out of range %d-%d", n, lo, hi)
		}
		return n, nil
	}
}
