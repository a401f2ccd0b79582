package transfer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// pacer spaces out the first send of consecutive frames.
type pacer struct {
	limiter *rate.Limiter
}

// newPacer allows one frame per interval. A zero interval never waits.
func newPacer(interval time.Duration) *pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &pacer{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next frame may be sent or ctx is done.
func (p *pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
