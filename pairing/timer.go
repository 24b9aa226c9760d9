package pairing

import (
	"context"
	"math"
	"time"

	"github.com/quietcircle/pairrelay/wire"
)

// runTimer drives one session's countdown. Each tick it re-checks that the
// session still exists, broadcasts the remaining time, and at the deadline
// triggers timeout teardown. Teardown cancels ctx, so the goroutine never
// outlives its session by more than one tick.
func (c *Coordinator) runTimer(ctx context.Context, s *Session) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	deadline := s.Deadline()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, ok := c.sessionAlive(s.ID); !ok {
				return
			}

			if !now.Before(deadline) {
				// Expire is idempotent: if a disconnect won the race
				// between our existence check and this call, it finds
				// nothing to end.
				c.Expire(s.ID)
				return
			}

			remaining := int(math.Ceil(deadline.Sub(now).Seconds()))
			c.broadcast(s, wire.TimerUpdate(remaining).Encode())
		}
	}
}
