// Package retry provides deadline and bounded-backoff wrappers for the
// network-facing steps of the pipeline.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrTimedOut reports that an operation exceeded its deadline.
	ErrTimedOut = errors.New("operation timed out")
	// ErrAborted reports that an operation was cancelled by the caller.
	ErrAborted = errors.New("operation aborted")
)

// WithTimeout races op against a deadline. The operation receives a derived
// context it must honour; if it keeps running past the deadline its result is
// discarded. The deadline timer is released on every exit path.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := op(opCtx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-opCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ErrAborted
		}
		return zero, ErrTimedOut
	}
}

// WithBackoff invokes op up to maxAttempts times, sleeping
// baseDelay * 2^attempt between attempts when shouldRetry approves the
// failure. The last error is propagated once attempts are exhausted, the
// predicate rejects, or the context is cancelled mid-wait.
func WithBackoff[T any](ctx context.Context, op func(context.Context) (T, error), shouldRetry func(error) bool, maxAttempts int, baseDelay time.Duration) (T, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var zero T
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ErrAborted
		}
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if shouldRetry == nil || !shouldRetry(err) || attempt == maxAttempts-1 {
			break
		}
		delay := baseDelay << attempt
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// transientFragments are matched case-insensitively against error text as a
// catch-all for transport failures that lack a typed representation.
var transientFragments = []string{
	"timeout",
	"network",
	"failed to fetch",
	"connection reset",
}

// IsTransientNetworkError reports whether err looks like a connectivity
// failure worth retrying: timeouts, DNS failures, connection resets, and
// well-known transport error messages.
func IsTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimedOut) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range transientFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
