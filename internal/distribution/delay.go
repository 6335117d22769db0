package distribution

import (
	"context"
	"time"
)

// delay draws uniformly from [lo, hi]. Callers hold p.mu.
func (p *Planner) delay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(p.rnd.Int63n(int64(hi-lo)+1))
}

// Wait blocks for the item's delay or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
