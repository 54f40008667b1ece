package api

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestTokenBucket_Allow(t *testing.T) {
	// 5 tokens, refilling at 10 per second.
	bucket := newTokenBucket(5, 10)

	for i := 0; i < 5; i++ {
		if !bucket.allow() {
			t.Errorf("Request %d should be allowed (burst)", i+1)
		}
	}
	if bucket.allow() {
		t.Error("6th request should be denied")
	}

	time.Sleep(150 * time.Millisecond)
	if !bucket.allow() {
		t.Error("Request after refill should be allowed")
	}
}

func TestTokenBucket_Remaining(t *testing.T) {
	bucket := newTokenBucket(10, 0)

	if got := bucket.remaining(); got != 10 {
		t.Errorf("Expected 10 remaining tokens, got %d", got)
	}
	for i := 0; i < 3; i++ {
		bucket.allow()
	}
	if got := bucket.remaining(); got != 7 {
		t.Errorf("Expected 7 remaining tokens, got %d", got)
	}
}

func TestTokenBucket_Reset(t *testing.T) {
	bucket := newTokenBucket(10, 1)
	if reset := bucket.reset(); time.Until(reset) > time.Second {
		t.Error("full bucket should reset now")
	}

	for i := 0; i < 5; i++ {
		bucket.allow()
	}
	until := time.Until(bucket.reset())
	if until < 4*time.Second || until > 6*time.Second {
		t.Errorf("reset in %v, want about 5s", until)
	}
}

func TestTokenBucket_Concurrent(t *testing.T) {
	bucket := newTokenBucket(100, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if bucket.allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 100 {
		t.Errorf("allowed %d requests, want exactly 100", allowed)
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 1, BurstSize: 2})
	defer rl.Stop()

	for _, ip := range []string{"192.0.2.1", "192.0.2.2"} {
		for i := 0; i < 2; i++ {
			if !rl.Allow(ip) {
				t.Errorf("%s request %d should be allowed", ip, i+1)
			}
		}
		if rl.Allow(ip) {
			t.Errorf("%s third request should be denied", ip)
		}
	}
}

func TestRateLimiter_DefaultBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60})
	defer rl.Stop()

	if rl.config.BurstSize != 10 {
		t.Errorf("BurstSize = %d, want 10", rl.config.BurstSize)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 2})
	defer rl.Stop()
	handler := rl.Middleware(okHandler())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
		req.RemoteAddr = "198.51.100.7:4321"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		w := send()
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != "60" {
			t.Errorf("X-RateLimit-Limit = %q, want 60", got)
		}
		if _, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64); err != nil {
			t.Errorf("X-RateLimit-Reset not a unix time: %v", err)
		}
	}

	w := send()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	resp := decodeResponse(t, w.Body)
	if resp.Error == nil || resp.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestRateLimiter_Prune(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 5})
	defer rl.Stop()

	rl.Allow("192.0.2.1")
	rl.prune(time.Now())
	if len(rl.buckets) != 1 {
		t.Fatalf("fresh bucket pruned")
	}

	rl.prune(time.Now().Add(rl.cleanupTTL + time.Second))
	if len(rl.buckets) != 0 {
		t.Errorf("idle bucket kept, %d buckets left", len(rl.buckets))
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 60})
	rl.Stop()
	rl.Stop()
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		want       string
	}{
		{"remote addr", "192.0.2.1:1234", "", "", "192.0.2.1"},
		{"remote addr without port", "192.0.2.1", "", "", "192.0.2.1"},
		{"ipv6 remote addr", "[2001:db8::1]:1234", "", "", "2001:db8::1"},
		{"forwarded wins", "192.0.2.1:1234", "203.0.113.5, 10.0.0.1", "198.51.100.1", "203.0.113.5"},
		{"real ip", "192.0.2.1:1234", "", "198.51.100.1", "198.51.100.1"},
		{"invalid forwarded ignored", "192.0.2.1:1234", "not-an-ip", "", "192.0.2.1"},
		{"invalid real ip ignored", "192.0.2.1:1234", "", "<script>", "192.0.2.1"},
		{"nothing valid", "garbage", "", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
