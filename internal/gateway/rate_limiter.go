package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per user
type RateLimiter struct {
	buckets    map[string]*userBucket
	bucketsMux sync.Mutex
	limit      rate.Limit
	burst      int
	stop       chan struct{}
	stopOnce   sync.Once
}

type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requestsPerMin per user with the given burst
func NewRateLimiter(requestsPerMin, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		buckets: make(map[string]*userBucket),
		limit:   rate.Limit(float64(requestsPerMin) / 60.0),
		burst:   burst,
		stop:    make(chan struct{}),
	}
}

// Allow reports whether userID may make a request now
func (rl *RateLimiter) Allow(userID string) bool {
	return rl.getBucket(userID, time.Now()).limiter.Allow()
}

// Reset forgets the bucket of a user
func (rl *RateLimiter) Reset(userID string) {
	rl.bucketsMux.Lock()
	defer rl.bucketsMux.Unlock()
	delete(rl.buckets, userID)
}

// getBucket gets or creates a token bucket for a user
func (rl *RateLimiter) getBucket(userID string, now time.Time) *userBucket {
	rl.bucketsMux.Lock()
	defer rl.bucketsMux.Unlock()

	bucket, exists := rl.buckets[userID]
	if !exists {
		bucket = &userBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[userID] = bucket
	}
	bucket.lastSeen = now
	return bucket
}

// cleanup removes buckets idle since before cutoff
func (rl *RateLimiter) cleanup(cutoff time.Time) {
	rl.bucketsMux.Lock()
	defer rl.bucketsMux.Unlock()

	for userID, bucket := range rl.buckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(rl.buckets, userID)
		}
	}
}

// StartCleanup periodically drops buckets idle for longer than interval
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				rl.cleanup(now.Add(-interval))
			case <-rl.stop:
				return
			}
		}
	}()
}

// Stop ends the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
