package mq

import "context"

// FetchLimiter gates message fetching so a worker never holds more tasks
// than it can judge.
type FetchLimiter interface {
	// Acquire blocks until a fetch slot is available or ctx is canceled.
	Acquire(ctx context.Context) error
	// Release returns a fetch slot.
	Release()
}

// TokenLimiter is a counting FetchLimiter with fixed capacity.
type TokenLimiter struct {
	tokens chan struct{}
}

// NewTokenLimiter creates a limiter with the given capacity, minimum one.
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

// Acquire implements FetchLimiter.
func (l *TokenLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
		return nil
	}
}

// Release implements FetchLimiter.
func (l *TokenLimiter) Release() {
	select {
	case l.tokens <- struct{}{}:
	default:
	}
}
