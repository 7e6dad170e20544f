package rate

import "errors"

// ErrRedisUnavailable wraps backend failures from the penalty counter.
// Callers decide whether to fail open; the limiter itself never rejects.
var ErrRedisUnavailable = errors.New("rate limiter redis unavailable")
