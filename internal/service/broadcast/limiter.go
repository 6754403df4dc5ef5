package broadcast

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces outbound deliveries. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewIntervalLimiter allows one delivery per interval with no burst, so the
// first delivery goes out immediately and each later one waits its turn.
// A non-positive interval disables pacing.
func NewIntervalLimiter(interval time.Duration) Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
