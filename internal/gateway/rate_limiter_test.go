package gateway

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter(60, 3)
	userID := "user123"

	// Burst is available immediately
	for i := 0; i < 3; i++ {
		if !limiter.Allow(userID) {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	// Next request is denied until the bucket refills
	if limiter.Allow(userID) {
		t.Error("Request 4 should be denied")
	}
}

func TestRateLimiter_MultipleUsers(t *testing.T) {
	limiter := NewRateLimiter(60, 1)

	if !limiter.Allow("user1") {
		t.Error("First request for user1 should be allowed")
	}
	if !limiter.Allow("user2") {
		t.Error("First request for user2 should be allowed")
	}
	if limiter.Allow("user1") {
		t.Error("Second request for user1 should be denied")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	limiter := NewRateLimiter(1, 1)

	limiter.Allow("user1")
	if limiter.Allow("user1") {
		t.Fatal("Second request should be denied")
	}

	limiter.Reset("user1")
	if !limiter.Allow("user1") {
		t.Error("Request after reset should be allowed")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(60, 1)
	limiter.Allow("idle")

	limiter.cleanup(time.Now().Add(time.Minute))

	limiter.bucketsMux.Lock()
	remaining := len(limiter.buckets)
	limiter.bucketsMux.Unlock()
	if remaining != 0 {
		t.Errorf("Expected idle bucket to be removed, %d left", remaining)
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	limiter := NewRateLimiter(60, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed < 10 || allowed > 11 {
		t.Errorf("Expected about 10 allowed requests, got %d", allowed)
	}
}

func TestRateLimiter_StartStop(t *testing.T) {
	limiter := NewRateLimiter(60, 1)
	limiter.StartCleanup(10 * time.Millisecond)
	for i := 0; i < 5; i++ {
		limiter.Allow(fmt.Sprintf("user%d", i))
	}
	limiter.Stop()
	limiter.Stop()
}
