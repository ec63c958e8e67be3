// Package ratelimiter throttles how fast the listener accepts connections.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces connection accepts with a token bucket.
//
// The listener calls Wait before every Accept. When the bucket is empty the
// accept loop stalls and new connections wait in the kernel backlog instead of
// being handed to a dispatcher, which bounds how fast the thread-per-connection
// mode can spawn goroutines.
//
// A zero rate disables limiting: Wait and Allow return immediately.
//
// Thread safety:
// All methods are safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns a Limiter admitting perSecond connections per second with
// bursts of up to burst. A burst below 1 is raised to 1 so a limited bucket
// can still admit connections.
func New(perSecond, burst uint) *Limiter {
	if perSecond == 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst))}
}

// Unlimited reports whether the limiter admits everything.
func (l *Limiter) Unlimited() bool {
	return l.limiter.Limit() == rate.Inf
}

// Allow consumes a token if one is available.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done. It returns the
// context error when cancelled, which the accept loop treats as shutdown.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Tokens returns the tokens currently in the bucket, for diagnostics.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}
