package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

func TestRetryPolicy_Execute_Success(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3))

	callCount := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
	if callCount != 1 {
		t.Errorf("callCount = %d, want 1", callCount)
	}
}

func TestRetryPolicy_Execute_RetriesConflicts(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3), WithBaseDelay(time.Millisecond))

	callCount := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return core.ErrOptimisticConflict("a1", int64(callCount))
		}
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
	if callCount != 3 {
		t.Errorf("callCount = %d, want 3", callCount)
	}
}

func TestRetryPolicy_Execute_NonRetryable(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3))

	callCount := 0
	lost := core.ErrLockLost("a1", "h1")
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		return lost
	})

	if !errors.Is(err, lost) {
		t.Errorf("Execute() error = %v, want %v", err, lost)
	}
	if callCount != 1 {
		t.Errorf("callCount = %d, want 1 (no retry for lock loss)", callCount)
	}
}

func TestRetryPolicy_Execute_Exhausted(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3), WithBaseDelay(time.Millisecond), WithJitter(0))

	callCount := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		return core.ErrLockUnavailable("a1")
	})

	if !IsRetryExhausted(err) {
		t.Fatalf("Execute() error = %v, want RetryExhaustedError", err)
	}
	if callCount != 3 {
		t.Errorf("callCount = %d, want 3", callCount)
	}
	if !core.IsCode(err, core.CodeLockUnavailable) {
		t.Errorf("exhausted error should unwrap to the last error, got %v", err)
	}
}

func TestRetryPolicy_CalculateDelay(t *testing.T) {
	policy := NewRetryPolicy(
		WithBaseDelay(10*time.Millisecond),
		WithMaxDelay(50*time.Millisecond),
		WithJitter(0),
	)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 50 * time.Millisecond}, // capped
	}
	for _, tt := range tests {
		if got := policy.CalculateDelay(tt.attempt); got != tt.want {
			t.Errorf("CalculateDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryPolicy_Jitter(t *testing.T) {
	policy := NewRetryPolicy(WithBaseDelay(100*time.Millisecond), WithJitter(0.5))

	for i := 0; i < 50; i++ {
		d := policy.CalculateDelay(1)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("CalculateDelay(1) = %v, outside jitter bounds", d)
		}
	}
}

func TestRetryPolicy_ContextCancellation(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(10), WithBaseDelay(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := policy.Execute(ctx, func(ctx context.Context) error {
		return core.ErrLockUnavailable("a1")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Execute() error = %v, want deadline exceeded", err)
	}
}

func TestRetryPolicy_ExecuteWithNotify(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3), WithBaseDelay(time.Millisecond))

	var notified []int
	calls := 0
	err := policy.ExecuteWithNotify(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return core.ErrBackend("put", errors.New("throttled"))
		}
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		notified = append(notified, attempt)
	})

	if err != nil {
		t.Fatalf("ExecuteWithNotify() error = %v", err)
	}
	if len(notified) != 2 || notified[0] != 1 || notified[1] != 2 {
		t.Errorf("notified = %v, want [1 2]", notified)
	}
}

func TestPolicyProfiles(t *testing.T) {
	conflict := ConflictRetryPolicy()
	if conflict.MaxAttempts != 5 || conflict.BaseDelay != 5*time.Millisecond {
		t.Errorf("unexpected conflict policy: %+v", conflict)
	}
	backend := BackendRetryPolicy()
	if backend.MaxAttempts != 4 || backend.MaxDelay != 5*time.Second {
		t.Errorf("unexpected backend policy: %+v", backend)
	}
}

func TestRetryPolicy_ImmediateContextCancel(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := policy.Execute(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("function should not run on a canceled context")
	}
}
