package engine

import (
	"context"
	"log/slog"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Pool bounds concurrent outbound calls to one provider and optionally rate-limits them.
// The work itself runs on the caller's goroutine.
type Pool struct {
	name    string
	sem     *semaphore.Weighted
	limiter *rate.Limiter // nil = unlimited
}

// NewPool creates a pool of workers slots. rps <= 0 disables rate limiting.
func NewPool(name string, workers int, rps float64) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{name: name, sem: semaphore.NewWeighted(int64(workers))}
	if rps > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
	slog.Info("pool: initialized",
		slog.String("pool", name),
		slog.Int("workers", workers),
		slog.Float64("rps", rps))
	return p
}

// Do runs fn once a slot is free. A nil pool runs fn directly.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if p == nil {
		return fn(ctx)
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return fn(ctx)
}
