// Package resilience composes the Retry -> CircuitBreaker -> Timeout -> RateLimit
// policy stack that spec.md §4.4 requires around every outbound provider call. The
// policy acts on a generic "execute request" function, never on a concrete HTTP
// client, so adapters stay free to use whatever transport they like (spec.md §9).
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/neooracle/pricefeed/internal/oraclerr"
)

// Config holds one provider's resilience settings. Zero values fall back to the
// defaults spec.md §4.4 names.
type Config struct {
	// MaxAttempts bounds the retry loop (default 3).
	MaxAttempts int
	// Timeout bounds a single call's wall clock (default 10s).
	Timeout time.Duration
	// RequestsPerSecond bounds the provider's token bucket (default unlimited).
	RequestsPerSecond float64
	// Burst is the token bucket's burst size (default 1).
	Burst int
	// BreakerFailureThreshold is the consecutive transient-failure count that
	// opens the breaker (default 5).
	BreakerFailureThreshold uint32
	// BreakerOpenDuration is how long the breaker stays open (default 30s).
	BreakerOpenDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.BreakerFailureThreshold == 0 {
		c.BreakerFailureThreshold = 5
	}
	if c.BreakerOpenDuration <= 0 {
		c.BreakerOpenDuration = 30 * time.Second
	}
	return c
}

// Policy is the per-provider composed resilience wrapper. One Policy is shared by
// every concurrent caller for that provider; its breaker and limiter carry state
// across calls (spec.md §5).
type Policy struct {
	provider string
	cfg      Config
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
}

// New builds a Policy for provider with cfg (defaults filled in as needed).
func New(provider string, cfg Config) *Policy {
	cfg = cfg.withDefaults()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1, // single half-open trial call
		Timeout:     cfg.BreakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		// Only transient errors (5xx, transport, deadline) count as breaker
		// failures; any other error is counted as a success.
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransient(err)
		},
	})

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	return &Policy{provider: provider, cfg: cfg, breaker: breaker, limiter: limiter}
}

// Execute runs fn under the full Retry -> CircuitBreaker -> Timeout -> RateLimit
// stack. fn should itself respect ctx cancellation. Makes at most cfg.MaxAttempts
// attempts. The wait before the n-th retry is drawn uniformly from [0, 2^n s]
// (exponential backoff from 1s, doubling, fully randomized); it is not a fixed
// 2^n s base plus up to 1s of jitter. Only transient errors (5xx, transport,
// breaker-open, deadline) are retried.
func Execute[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	var result T

	callOnce := func() (T, error) {
		// Composition order is outer->inner: Retry -> CircuitBreaker -> Timeout ->
		// RateLimit (spec.md §4.4). RateLimit sits innermost, inside the breaker
		// and after the per-call timeout is established, so a tripped breaker
		// short-circuits before ever touching the limiter, and the limiter's wait
		// is itself bounded by the call's own timeout rather than the outer ctx.
		res, err := p.breaker.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
			defer cancel()

			if p.limiter != nil {
				if err := p.limiter.Wait(callCtx); err != nil {
					return zero, fmt.Errorf("%w: rate limiter wait: %v", oraclerr.ErrCancelled, err)
				}
			}

			return fn(callCtx)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return zero, fmt.Errorf("%w: provider %s: %v", oraclerr.ErrCircuitOpen, p.provider, err)
			}
			return zero, err
		}
		return res.(T), nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	eb.Multiplier = 2
	eb.RandomizationFactor = 1 // each wait is uniform over [0, 2x the current interval]
	eb.MaxElapsedTime = 0

	bounded := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.cfg.MaxAttempts-1)), ctx)

	err := backoff.Retry(func() error {
		v, callErr := callOnce()
		if callErr == nil {
			result = v
			return nil
		}
		lastErr = callErr
		if !isTransient(callErr) {
			return backoff.Permanent(callErr)
		}
		return callErr
	}, bounded)

	if err != nil {
		if lastErr != nil {
			return zero, lastErr
		}
		return zero, err
	}
	return result, nil
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, oraclerr.ErrCircuitOpen) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// HTTPStatusError carries a non-2xx HTTP response status so isTransient (and
// adapters) can distinguish retryable 5xx from terminal 4xx.
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return "resilience: http status " + e.Status
}

// NewHTTPStatusError builds an HTTPStatusError from an *http.Response's status.
func NewHTTPStatusError(resp *http.Response) *HTTPStatusError {
	return &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
}
