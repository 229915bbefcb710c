package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	l, err := New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestCheck_AllowsWithinLimit(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Check(ctx, "k", 3, time.Minute)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if !res.Allowed {
			t.Errorf("attempt %d: want allowed, got blocked", i)
		}
	}
}

func TestCheck_BlocksOverLimit(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Check(ctx, "k", 3, time.Minute); err != nil {
			t.Fatalf("Check: %v", err)
		}
	}

	res, err := l.Check(ctx, "k", 3, time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Allowed {
		t.Error("want blocked after exceeding limit, got allowed")
	}
	if res.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", res.Remaining)
	}
}

func TestCheck_SeparateKeysIndependent(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()

	if _, err := l.Check(ctx, "a", 1, time.Minute); err != nil {
		t.Fatalf("Check a: %v", err)
	}
	res, err := l.Check(ctx, "b", 1, time.Minute)
	if err != nil {
		t.Fatalf("Check b: %v", err)
	}
	if !res.Allowed {
		t.Error("key b should be unaffected by key a's counter")
	}
}
