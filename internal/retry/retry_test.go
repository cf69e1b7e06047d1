package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

func TestWithTimeoutSuccess(t *testing.T) {
	got, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	_, err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		select {
		case <-time.After(time.Second):
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("got %v, want ErrTimedOut", err)
	}
}

func TestWithTimeoutAborted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := WithTimeout(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("got %v, want ErrAborted", err)
	}
}

func TestWithBackoffRetriesThenSucceeds(t *testing.T) {
	calls := 0
	got, err := WithBackoff(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("network unreachable")
		}
		return "ok", nil
	}, IsTransientNetworkError, 5, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("got %q after %d calls, want ok after 3", got, calls)
	}
}

func TestWithBackoffStopsOnNonRetryable(t *testing.T) {
	calls := 0
	permanent := errors.New("schema invalid")
	_, err := WithBackoff(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", permanent
	}, IsTransientNetworkError, 5, time.Millisecond)
	if !errors.Is(err, permanent) {
		t.Fatalf("got %v, want permanent error", err)
	}
	if calls != 1 {
		t.Fatalf("got %d calls, want 1", calls)
	}
}

func TestWithBackoffExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := WithBackoff(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("request timeout")
	}, IsTransientNetworkError, 3, time.Millisecond)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("got %d calls, want 3", calls)
	}
}

func TestWithBackoffCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := WithBackoff(ctx, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("connection reset by peer")
	}, IsTransientNetworkError, 10, time.Second)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("got %d calls, want 1 (cancelled during backoff wait)", calls)
	}
}

func TestWithBackoffRetriesDeadlineExpiry(t *testing.T) {
	calls := 0
	got, err := WithBackoff(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return WithTimeout(ctx, 5*time.Millisecond, func(ctx context.Context) (string, error) {
			if calls < 2 {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return "ok", nil
		})
	}, IsTransientNetworkError, 3, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Fatalf("got %q after %d calls, want ok after 2", got, calls)
	}
}

func TestIsTransientNetworkError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline expiry", fmt.Errorf("generate: %w", ErrTimedOut), true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "example.invalid"}, true},
		{"connection reset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"timeout substring", errors.New("context deadline exceeded (Client.Timeout)"), true},
		{"failed to fetch", errors.New("Failed to fetch"), true},
		{"network substring", errors.New("network is unreachable"), true},
		{"plain failure", errors.New("invalid response"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransientNetworkError(tc.err); got != tc.want {
				t.Fatalf("IsTransientNetworkError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
