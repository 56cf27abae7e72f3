package waicolle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Rewarder accumulates moecoin rewards and pays them out in batches.
type Rewarder struct {
	API API
	// PerMessage is the coins earned per rewarded message.
	PerMessage int
	// Cooldown is the minimum time between rewarded messages per user.
	Cooldown time.Duration
	Logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]int
	last    map[string]time.Time
}

// NewRewarder creates a rewarder.
func NewRewarder(api API, perMessage int, cooldown time.Duration, lg *slog.Logger) *Rewarder {
	return &Rewarder{
		API:        api,
		PerMessage: perMessage,
		Cooldown:   cooldown,
		Logger:     lg,
		pending:    make(map[string]int),
		last:       make(map[string]time.Time),
	}
}

// Message rewards a user for a message at t unless they are on cooldown.
// It reports whether the message was rewarded.
func (r *Rewarder) Message(user string, t time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.last[user]; ok && t.Sub(l) < r.Cooldown {
		return false
	}
	r.last[user] = t
	r.pending[user] += r.PerMessage
	return true
}

// Add queues an arbitrary reward.
func (r *Rewarder) Add(user string, coins int) {
	if coins == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[user] += coins
}

// Pending returns the coins queued for a user.
func (r *Rewarder) Pending(user string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[user]
}

// Flush pays out all pending rewards. Failed payments are queued again.
func (r *Rewarder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = make(map[string]int, len(batch))
	for u, t := range r.last {
		if time.Since(t) > r.Cooldown {
			delete(r.last, u)
		}
	}
	r.mu.Unlock()
	var failed int
	for u, n := range batch {
		if n == 0 {
			continue
		}
		if err := r.API.AddCoins(ctx, u, n); err != nil {
			r.Logger.WarnContext(ctx, "couldn't pay reward", slog.String("user", u), slog.Int("coins", n), slog.Any("err", err))
			r.Add(u, n)
			failed++
		}
	}
	if failed != 0 {
		return fmt.Errorf("couldn't pay %d of %d rewards", failed, len(batch))
	}
	return nil
}

// Run flushes on an interval until the context ends, then flushes once more
// with a short grace period.
func (r *Rewarder) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := r.Flush(fctx); err != nil {
				r.Logger.ErrorContext(ctx, "final reward flush failed", slog.Any("err", err))
			}
			return nil
		case <-t.C:
			if err := r.Flush(ctx); err != nil {
				r.Logger.WarnContext(ctx, "reward flush failed", slog.Any("err", err))
			}
		}
	}
}
