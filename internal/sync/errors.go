package sync

import (
	"fmt"
	"math"
	"time"
)

// RateLimitError is the gate's local policy rejection: the previous sync is
// too recent or another sync for the same user is in flight. It is always
// recoverable by waiting.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("sync not allowed yet, retry after %s", e.RetryAfter)
}

// Seconds returns the wait hint in whole seconds, rounded up so a caller
// that waits exactly this long is guaranteed to pass the gate.
func (e *RateLimitError) Seconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}
