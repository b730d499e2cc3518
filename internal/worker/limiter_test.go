package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "llm:openai"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	if err := limiter.Wait(ctx, "llamacloud"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_RateLimit(t *testing.T) {
	limiter := NewLimiter(1, 1)

	if err := limiter.Wait(context.Background(), "llm:openai"); err != nil {
		t.Errorf("first wait failed: %v", err)
	}

	// burst 1 is consumed
	if limiter.getLimiter("llm:openai").Allow() {
		t.Errorf("expected allow to fail (exhausted tokens)")
	}

	if !limiter.getLimiter("llamacloud").Allow() {
		t.Errorf("expected allow for other service")
	}
}

func TestLimiter_WaitRespectsContext(t *testing.T) {
	limiter := NewLimiter(0.1, 1)
	_ = limiter.Wait(context.Background(), "slow")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "slow"); err == nil {
		t.Error("expected wait to fail when the context deadline is shorter than the refill")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if err := limiter.Wait(context.Background(), "llm:openai"); err != nil {
			t.Fatalf("expected unlimited limiter to pass request %d: %v", i, err)
		}
	}

	var nilLimiter *Limiter
	if err := nilLimiter.Wait(context.Background(), "llm:openai"); err != nil {
		t.Errorf("expected nil limiter to be a no-op, got %v", err)
	}
}

func TestLimiter_SetRate(t *testing.T) {
	limiter := NewLimiter(10, 10)
	limiter.SetRate("llm:anthropic", 0.1, 1)

	if !limiter.getLimiter("llm:anthropic").Allow() {
		t.Errorf("first request should pass")
	}
	if limiter.getLimiter("llm:anthropic").Allow() {
		t.Errorf("second request should fail")
	}
	if !limiter.getLimiter("llm:openai").Allow() {
		t.Errorf("other service should pass")
	}
}

func TestLimiter_SetRateUnlimited(t *testing.T) {
	limiter := NewLimiter(0.1, 1)
	limiter.SetRate("llamacloud", 0, 1)

	for i := 0; i < 20; i++ {
		if err := limiter.Wait(context.Background(), "llamacloud"); err != nil {
			t.Fatalf("expected unlimited service to pass request %d: %v", i, err)
		}
	}
}
