package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"oip/fsbot/pkg/errorutil"
)

func noSleep(context.Context, time.Duration) bool { return true }

func TestPolicy_NextDelayWithoutJitter(t *testing.T) {
	p := &Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := p.NextDelay(i); got != w {
			t.Fatalf("attempt %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestPolicy_NextDelayBoundedByJitter(t *testing.T) {
	p := &Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second, ExponentialBase: 3, JitterFraction: 0.25}
	upper := time.Duration(float64(p.MaxDelay) * (1 + p.JitterFraction))
	for attempt := 0; attempt < 12; attempt++ {
		for i := 0; i < 200; i++ {
			d := p.NextDelay(attempt)
			if d < 0 {
				t.Fatalf("attempt %d: negative delay %v", attempt, d)
			}
			if d > upper {
				t.Fatalf("attempt %d: delay %v exceeds %v", attempt, d, upper)
			}
		}
	}
}

func TestPolicy_NextDelayNonDecreasingInExpectation(t *testing.T) {
	p := &Policy{MaxAttempts: 10, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, ExponentialBase: 2, JitterFraction: 0.5}
	mean := func(attempt int) float64 {
		var sum float64
		for i := 0; i < 2000; i++ {
			sum += float64(p.NextDelay(attempt))
		}
		return sum / 2000
	}
	prev := mean(0)
	for attempt := 1; attempt < 9; attempt++ {
		cur := mean(attempt)
		// 抖动为对称分布，容忍 10% 的采样误差
		if cur < prev*0.9 {
			t.Fatalf("attempt %d: mean %v dropped below previous %v", attempt, cur, prev)
		}
		prev = cur
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	p := &Policy{MaxAttempts: 2}
	network := errorutil.NewNetwork("reset")
	if !p.ShouldRetry(network, 0) || !p.ShouldRetry(network, 1) {
		t.Fatalf("expected network error to be retried below max attempts")
	}
	if p.ShouldRetry(network, 2) {
		t.Fatalf("expected no retry once attempt reaches max attempts")
	}
	if p.ShouldRetry(errorutil.NewValidation("bad"), 0) {
		t.Fatalf("expected validation error to fail fast")
	}
	if p.ShouldRetry(errorutil.NewConfiguration("missing"), 0) {
		t.Fatalf("expected configuration error to fail fast")
	}
	if p.ShouldRetry(errorutil.NewBusiness("rule"), 0) {
		t.Fatalf("expected business error to fail fast")
	}
}

func TestExecute_RetriesUntilExhausted(t *testing.T) {
	p := &Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, ExponentialBase: 2, Sleep: noSleep}
	calls := 0
	res := Do(context.Background(), p, func(context.Context) error {
		calls++
		return errorutil.NewNetwork("unreachable")
	})
	if res.OK() {
		t.Fatalf("expected terminal failure")
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls (attempts 0..3), got %d", calls)
	}
	if res.Attempts != 4 {
		t.Fatalf("expected 4 attempts recorded, got %d", res.Attempts)
	}
	if res.Err.Kind != errorutil.KindNetwork {
		t.Fatalf("expected NETWORK terminal error, got %s", res.Err.Kind)
	}
}

func TestExecute_NonRetryableFailsFast(t *testing.T) {
	p := &Policy{MaxAttempts: 5, Sleep: noSleep}
	calls := 0
	res := Do(context.Background(), p, func(context.Context) error {
		calls++
		return errorutil.NewValidation("bad payload")
	})
	if calls != 1 {
		t.Fatalf("expected single call, got %d", calls)
	}
	if res.Err == nil || res.Err.Kind != errorutil.KindValidation {
		t.Fatalf("expected VALIDATION error, got %+v", res.Err)
	}
}

func TestExecute_SucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	p := &Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, ExponentialBase: 2,
		Sleep: func(_ context.Context, d time.Duration) bool {
			delays = append(delays, d)
			return true
		},
	}
	calls := 0
	res := Execute(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset by peer")
		}
		return "sent", nil
	})
	if !res.OK() || res.Value != "sent" {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(delays) != 2 || delays[0] != 10*time.Millisecond || delays[1] != 20*time.Millisecond {
		t.Fatalf("unexpected delays: %v", delays)
	}
}

func TestExecute_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Policy{MaxAttempts: 10, BaseDelay: time.Hour, ExponentialBase: 2}
	calls := 0
	res := Do(ctx, p, func(context.Context) error {
		calls++
		cancel()
		return errorutil.NewTimeout("slow")
	})
	if calls != 1 {
		t.Fatalf("expected one call before cancellation, got %d", calls)
	}
	if res.OK() {
		t.Fatalf("expected failure after cancellation")
	}
	if v, _ := res.Err.Detail("interrupted"); v != true {
		t.Fatalf("expected interrupted detail, got %+v", res.Err.Details)
	}
}
