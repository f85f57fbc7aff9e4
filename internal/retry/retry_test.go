package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_Success(t *testing.T) {
	config := DefaultConfig()

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		return nil
	})

	if result.Err != nil {
		t.Errorf("expected no error, got %v", result.Err)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetryThenSuccess(t *testing.T) {
	config := Linear(5, time.Millisecond)

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	if result.Err != nil {
		t.Errorf("expected no error, got %v", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	config := Linear(3, time.Millisecond)
	wantErr := errors.New("always failing")

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		return wantErr
	})

	if !errors.Is(result.Err, wantErr) {
		t.Errorf("expected last error surfaced, got %v", result.Err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_PermanentStopsRetrying(t *testing.T) {
	config := Linear(5, time.Millisecond)

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		return Permanent(errors.New("bad request"))
	})

	if calls != 1 {
		t.Errorf("permanent error should not be retried, got %d calls", calls)
	}
	if !IsPermanent(result.Err) {
		t.Errorf("expected permanent error, got %v", result.Err)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	config := Linear(10, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	result := Do(ctx, config, func() error {
		calls++
		return errors.New("fail")
	})

	if !errors.Is(result.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", result.Err)
	}
	if calls == 0 {
		t.Error("expected at least one attempt before cancel")
	}
}

func TestDoWithValue(t *testing.T) {
	config := Linear(3, time.Millisecond)

	calls := 0
	value, result := DoWithValue(context.Background(), config, func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	})

	if result.Err != nil {
		t.Errorf("expected no error, got %v", result.Err)
	}
	if value != "ok" {
		t.Errorf("expected %q, got %q", "ok", value)
	}
}

func TestBackoffFor_Linear(t *testing.T) {
	config := Linear(3, 150*time.Millisecond)

	if got := backoffFor(config, 1); got != 150*time.Millisecond {
		t.Errorf("attempt 1: expected 150ms, got %v", got)
	}
	if got := backoffFor(config, 2); got != 300*time.Millisecond {
		t.Errorf("attempt 2: expected 300ms, got %v", got)
	}
}

func TestBackoffFor_ExponentialCapped(t *testing.T) {
	config := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Factor: 2.0}

	if got := backoffFor(config, 1); got != 100*time.Millisecond {
		t.Errorf("attempt 1: expected 100ms, got %v", got)
	}
	if got := backoffFor(config, 5); got != 300*time.Millisecond {
		t.Errorf("attempt 5: expected cap of 300ms, got %v", got)
	}
}
