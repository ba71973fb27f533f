package security

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raaihank/pii-sentinel/internal/config"
)

// idle clients are forgotten after this long
const bucketIdleTTL = time.Hour

// RateLimiter implements per-client token bucket rate limiting
type RateLimiter struct {
	config  config.RateLimitConfig
	buckets map[string]*clientBucket
	mu      sync.Mutex
	now     func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMin
	}
	return &RateLimiter{
		config:  cfg,
		buckets: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

// Allow checks if a request from the given client is allowed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.Enabled || r.config.RequestsPerMin <= 0 {
		return true
	}

	now := r.now()
	return r.getBucket(clientIP, now).AllowN(now, 1)
}

// Clients returns how many clients are currently tracked
func (r *RateLimiter) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// getBucket gets or creates the limiter for a client
func (r *RateLimiter) getBucket(clientIP string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, exists := r.buckets[clientIP]
	if !exists {
		perSecond := rate.Limit(float64(r.config.RequestsPerMin) / 60.0)
		bucket = &clientBucket{limiter: rate.NewLimiter(perSecond, r.config.Burst)}
		r.buckets[clientIP] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter
}

// CleanupOldBuckets removes buckets that have been idle for an hour
func (r *RateLimiter) CleanupOldBuckets() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-bucketIdleTTL)
	for ip, bucket := range r.buckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(r.buckets, ip)
		}
	}
}

// StartCleanupRoutine periodically cleans up idle buckets until ctx is done
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOldBuckets()
			}
		}
	}()
}
