package limiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenLimiterCapacity(t *testing.T) {
	l := NewTokenLimiter(0)
	if l.Capacity() != 1 {
		t.Fatalf("expected capacity 1 for non-positive size, got %d", l.Capacity())
	}

	l = NewTokenLimiter(2)
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if l.Available() != 0 {
		t.Fatalf("expected no free tokens, got %d", l.Available())
	}

	ok, err := l.AcquireWithin(ctx, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected acquire to time out on a full limiter")
	}

	l.Release()
	ok, err = l.AcquireWithin(ctx, 0)
	if err != nil || !ok {
		t.Fatalf("expected free token after release, ok=%v err=%v", ok, err)
	}
}

func TestTokenLimiterReleaseBeyondCapacity(t *testing.T) {
	l := NewTokenLimiter(1)
	l.Release()
	l.Release()
	if l.Available() != 1 {
		t.Fatalf("release must not grow the limiter, got %d", l.Available())
	}
}

func TestTokenLimiterAcquireCanceled(t *testing.T) {
	l := NewTokenLimiter(1)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := l.AcquireWithin(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTokenLimiterWaiterWakesOnRelease(t *testing.T) {
	l := NewTokenLimiter(1)
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	done := make(chan bool, 1)
	go func() {
		ok, _ := l.AcquireWithin(ctx, time.Second)
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	l.Release()

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("waiter should have received the released token")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter never woke up")
	}
}
