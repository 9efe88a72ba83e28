package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicy_Do(t *testing.T) {
	errBoom := errors.New("boom")

	t.Run("succeeds without retry", func(t *testing.T) {
		p := New(3, time.Second)
		calls := 0
		err := p.Do(context.Background(), func() error {
			calls++
			return nil
		}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Fatalf("expected 1 call, got %d", calls)
		}
	})

	t.Run("exponential backoff with fake clock", func(t *testing.T) {
		var delays []time.Duration
		p := Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Sleep: func(ctx context.Context, d time.Duration) error {
				delays = append(delays, d)
				return nil
			},
		}

		calls := 0
		err := p.Do(context.Background(), func() error {
			calls++
			return errBoom
		}, nil)

		if !errors.Is(err, errBoom) {
			t.Fatalf("expected boom, got %v", err)
		}
		// 初始尝试 + 3 次重试
		if calls != 4 {
			t.Fatalf("expected 4 calls, got %d", calls)
		}
		want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
		if len(delays) != len(want) {
			t.Fatalf("expected %d sleeps, got %d", len(want), len(delays))
		}
		for i := range want {
			if delays[i] != want[i] {
				t.Errorf("sleep %d: expected %v, got %v", i, want[i], delays[i])
			}
		}
	})

	t.Run("recovers mid-way", func(t *testing.T) {
		p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond,
			Sleep: func(ctx context.Context, d time.Duration) error { return nil }}
		calls := 0
		err := p.Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errBoom
			}
			return nil
		}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Fatalf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("non-retryable error aborts immediately", func(t *testing.T) {
		p := Policy{MaxAttempts: 3, BaseDelay: time.Second,
			Sleep: func(ctx context.Context, d time.Duration) error {
				t.Fatal("should not sleep for non-retryable error")
				return nil
			}}
		calls := 0
		err := p.Do(context.Background(), func() error {
			calls++
			return errBoom
		}, func(error) bool { return false })
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if calls != 1 {
			t.Fatalf("expected 1 call, got %d", calls)
		}
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		p := Policy{MaxAttempts: 5, BaseDelay: time.Second,
			Sleep: func(ctx context.Context, d time.Duration) error {
				cancel()
				return ctx.Err()
			}}
		calls := 0
		err := p.Do(ctx, func() error {
			calls++
			return errBoom
		}, nil)
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if calls != 1 {
			t.Fatalf("expected 1 call, got %d", calls)
		}
	})
}
