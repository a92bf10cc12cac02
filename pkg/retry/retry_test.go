package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts: attempts,
		InitialWait: time.Millisecond,
		MaxWait:     time.Millisecond,
		Multiplier:  2,
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	sentinel := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ExhaustedReturnsUnwrapped(t *testing.T) {
	sentinel := errors.New("still failing")
	var notified []int
	cfg := fastConfig(3)
	cfg.Notify = func(attempt int, err error, wait time.Duration) {
		notified = append(notified, attempt)
	}

	err := Do(context.Background(), cfg, func() error {
		return Retryable(sentinel)
	})
	if err != sentinel {
		t.Fatalf("expected unwrapped sentinel, got %#v", err)
	}
	if IsRetryable(err) {
		t.Error("returned error should not be marked retryable")
	}
	if len(notified) != 2 {
		t.Errorf("expected 2 notifications, got %v", notified)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastConfig(0), func() error {
		return Retryable(errors.New("flaky"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(2), func() (string, error) {
		calls++
		if calls == 1 {
			return "", Retryable(errors.New("once"))
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("DoWithResult = %q, %v", got, err)
	}
}

func TestRetryableNil(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should be nil")
	}
}
