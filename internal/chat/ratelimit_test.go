package chat

import (
	"testing"
	"time"
)

func TestRateLimiterEnforcesLimitPerKey(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Hour)
	defer rl.Close()

	if !rl.Allow("user-1") || !rl.Allow("user-1") {
		t.Fatal("first two requests should be allowed")
	}
	if rl.Allow("user-1") {
		t.Fatal("third request within window should be denied")
	}
	if !rl.Allow("user-2") {
		t.Fatal("separate keys must not share a budget")
	}
}

func TestRateLimiterRecoversAfterWindow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 50*time.Millisecond)
	defer rl.Close()

	if !rl.Allow("user-1") {
		t.Fatal("first request should be allowed")
	}
	if rl.Allow("user-1") {
		t.Fatal("second request should be denied")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("user-1") {
		t.Fatal("request after window expiry should be allowed")
	}
}
