package infra

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	val, result := Retry(context.Background(), &RetryConfig{MaxAttempts: 3}, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if val != "ok" || result.LastError != nil {
		t.Fatalf("val = %q, err = %v, want ok/nil", val, result.LastError)
	}
	if calls != 1 || result.Attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1/1", calls, result.Attempts)
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	calls := 0
	val, result := Retry(context.Background(), &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Strategy:     BackoffConstant,
	}, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if val != 42 || result.LastError != nil {
		t.Fatalf("val = %d, err = %v, want 42/nil", val, result.LastError)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	_, result := Retry(context.Background(), &RetryConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		Strategy:     BackoffConstant,
	}, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(result.LastError, boom) {
		t.Fatalf("LastError = %v, want boom", result.LastError)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, result := Retry(context.Background(), &RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
	}, func(ctx context.Context) (int, error) {
		calls++
		return 0, AsPermanent(errors.New("bad request"))
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (permanent errors must not retry)", calls)
	}
	if !IsPermanent(result.LastError) {
		t.Errorf("LastError = %v, want a PermanentError", result.LastError)
	}
}

func TestRetryCustomPredicate(t *testing.T) {
	calls := 0
	retryable := errors.New("retry me")
	_, result := Retry(context.Background(), &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Strategy:     BackoffConstant,
		RetryIf:      func(err error) bool { return errors.Is(err, retryable) },
	}, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, retryable
		}
		return 0, errors.New("give up")
	})
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (second error fails the predicate)", calls)
	}
	if result.LastError == nil || result.LastError.Error() != "give up" {
		t.Errorf("LastError = %v, want give up", result.LastError)
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, result := Retry(ctx, &RetryConfig{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		Strategy:     BackoffConstant,
	}, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (cancel during backoff stops the loop)", calls)
	}
	if !errors.Is(result.LastError, context.Canceled) {
		t.Errorf("LastError = %v, want context.Canceled", result.LastError)
	}
}

func TestRetryDoesNotRetryContextErrors(t *testing.T) {
	calls := 0
	_, result := Retry(context.Background(), &RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
	}, func(ctx context.Context) (int, error) {
		calls++
		return 0, context.DeadlineExceeded
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if !errors.Is(result.LastError, context.DeadlineExceeded) {
		t.Errorf("LastError = %v, want DeadlineExceeded", result.LastError)
	}
}

func TestRetryNilConfigUsesDefaults(t *testing.T) {
	calls := 0
	val, result := Retry(context.Background(), nil, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if val != "ok" || result.LastError != nil {
		t.Fatalf("val = %q, err = %v, want ok/nil", val, result.LastError)
	}
	if result.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", result.Attempts)
	}
}

func TestRetryDelayCappedAndExponential(t *testing.T) {
	cfg := &RetryConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     25 * time.Millisecond,
		Strategy:     BackoffExponential,
	}
	if d := retryDelay(cfg, 0); d != 10*time.Millisecond {
		t.Errorf("attempt 0 delay = %v, want 10ms", d)
	}
	if d := retryDelay(cfg, 1); d != 20*time.Millisecond {
		t.Errorf("attempt 1 delay = %v, want 20ms", d)
	}
	if d := retryDelay(cfg, 5); d != 25*time.Millisecond {
		t.Errorf("attempt 5 delay = %v, want the 25ms cap", d)
	}
}

func TestPermanentErrorUnwraps(t *testing.T) {
	inner := errors.New("inner")
	wrapped := AsPermanent(inner)
	if !errors.Is(wrapped, inner) {
		t.Error("PermanentError should unwrap to the inner error")
	}
	if AsPermanent(nil) != nil {
		t.Error("AsPermanent(nil) should be nil")
	}
	if IsPermanent(inner) {
		t.Error("a bare error is not permanent")
	}
}
