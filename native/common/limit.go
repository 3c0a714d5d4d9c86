package common

import (
	"errors"
	"math"
)

var (
	ErrLimitExceeded   = errors.New("limit exceeded")
	ErrCounterOverflow = errors.New("counter overflow")
)

// CheckLimit returns used+add when it stays within limit. A zero limit is
// unlimited; the counter still may not wrap.
func CheckLimit(limit, used, add uint64) (uint64, error) {
	if used > math.MaxUint64-add {
		return used, ErrCounterOverflow
	}
	next := used + add
	if limit > 0 && next > limit {
		return used, ErrLimitExceeded
	}
	return next, nil
}
