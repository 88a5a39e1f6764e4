package limiter

import (
	"context"
	"time"
)

// TokenLimiter is a simple counting limiter bounding concurrent jobs.
type TokenLimiter struct {
	tokens chan struct{}
}

// NewTokenLimiter creates a limiter with a fixed capacity.
func NewTokenLimiter(size int) *TokenLimiter {
	if size <= 0 {
		size = 1
	}
	tokens := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		tokens <- struct{}{}
	}
	return &TokenLimiter{tokens: tokens}
}

// Acquire blocks until a token is available or ctx is canceled.
func (l *TokenLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
		return nil
	}
}

// AcquireWithin waits at most wait for a token. It returns false when none
// became available in time. A non-positive wait only takes a free token.
func (l *TokenLimiter) AcquireWithin(ctx context.Context, wait time.Duration) (bool, error) {
	if wait <= 0 {
		select {
		case <-l.tokens:
			return true, nil
		default:
			return false, ctx.Err()
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-l.tokens:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// Release returns a token to the limiter.
func (l *TokenLimiter) Release() {
	select {
	case l.tokens <- struct{}{}:
	default:
	}
}

// Available reports how many tokens are free right now.
func (l *TokenLimiter) Available() int {
	return len(l.tokens)
}

// Capacity reports the limiter size.
func (l *TokenLimiter) Capacity() int {
	return cap(l.tokens)
}
