package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	c, _ := gin.CreateTestContext(w)
	c.Request = req

	// IP fallback when no userID
	key := KeyByUserOrIP()(c)
	if !strings.HasPrefix(key, "ip:") || !strings.Contains(key, "203.0.113.9") {
		t.Fatalf("expected ip-based key; got %q", key)
	}

	c.Set(ctxKeyUserID, uint(123))
	if key2 := KeyByUserOrIP()(c); key2 != "user:123" {
		t.Fatalf("expected user-based key; got %q", key2)
	}
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateOptions{RPS: 2})
	if rl.read.burst != 1 {
		t.Fatalf("burst coercion failed, got %d", rl.read.burst)
	}
	if rl.write != rl.read {
		t.Fatalf("write budget should default to the read budget: %+v vs %+v", rl.write, rl.read)
	}
	if rl.ttl != 10*time.Minute || rl.keyFn == nil {
		t.Fatalf("defaults not applied: ttl=%v", rl.ttl)
	}

	rl = NewRateLimiter(RateOptions{RPS: 5, Burst: 10, WriteRPS: 0.5, WriteBurst: 2})
	if rl.write.rps != 0.5 || rl.write.burst != 2 || rl.read.burst != 10 {
		t.Fatalf("explicit budgets ignored: read=%+v write=%+v", rl.read, rl.write)
	}
}

func TestRateLimiter_BucketReuseAndClasses(t *testing.T) {
	rl := NewRateLimiter(RateOptions{RPS: 2, Burst: 3, WriteRPS: 1, WriteBurst: 1})
	now := time.Now()

	readK := bucketKey{id: "user:1", class: classRead}
	lim := rl.bucket(readK, now)
	if got := rl.bucket(readK, now); got != lim {
		t.Fatalf("expected same limiter instance to be reused")
	}
	w := rl.bucket(bucketKey{id: "user:1", class: classWrite}, now)
	if w == lim {
		t.Fatalf("read and write must not share a bucket")
	}
	if lim.Burst() != 3 || w.Burst() != 1 {
		t.Fatalf("bursts: read=%d write=%d", lim.Burst(), w.Burst())
	}
}

func TestRateLimiter_IdleBucketsSwept(t *testing.T) {
	rl := NewRateLimiter(RateOptions{RPS: 1, Burst: 1, IdleTTL: time.Nanosecond})
	old := bucketKey{id: "old"}

	rl.mu.Lock()
	rl.visitors[old] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now().Add(-time.Hour)}
	rl.lookups = gcEvery - 1
	rl.mu.Unlock()

	_ = rl.bucket(bucketKey{id: "new"}, time.Now())

	rl.mu.Lock()
	_, existsOld := rl.visitors[old]
	_, existsNew := rl.visitors[bucketKey{id: "new"}]
	lookups := rl.lookups
	rl.mu.Unlock()

	if existsOld {
		t.Fatalf("expected 'old' visitor to be evicted")
	}
	if !existsNew {
		t.Fatalf("expected 'new' visitor to be created")
	}
	if lookups != 0 {
		t.Fatalf("sweep should reset the counter, got %d", lookups)
	}
}

func TestIsRateBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if IsRateBypass(c) {
		t.Fatalf("expected IsRateBypass=false by default")
	}
	c.Set(ctxKeyRateBypass, true)
	if !IsRateBypass(c) {
		t.Fatalf("expected IsRateBypass=true when set")
	}
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatalf("expected IsRateBypass=false when non-bool stored")
	}
}

func TestRateLimiter_Handler_Allow_Deny_And_Bypass(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// rps=1, burst=1 -> first immediate request allowed, second denied
	rl := NewRateLimiter(RateOptions{RPS: 1, Burst: 1})

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header("X-Request-ID", "rid-1"); c.Next() })
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("first request should be allowed, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be rate-limited, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After=1, got %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w2.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "rate_limited" || body["request_id"] != "rid-1" {
		t.Fatalf("unexpected JSON body: %v", body)
	}

	rBypass := gin.New()
	rBypass.Use(func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() })
	rBypass.Use(rl.Handler()) // same limiter: bypass must skip token checks
	rBypass.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w3 := httptest.NewRecorder()
	rBypass.ServeHTTP(w3, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w3.Code != http.StatusOK {
		t.Fatalf("bypass request should be allowed, got %d", w3.Code)
	}
}

func TestRateLimiter_WritesHaveTheirOwnBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(RateOptions{RPS: 100, Burst: 100, WriteRPS: 0.1, WriteBurst: 1})

	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/listings", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/messages", func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	if w := send(http.MethodPost, "/messages"); w.Code != http.StatusCreated {
		t.Fatalf("first write: %d", w.Code)
	}
	w := send(http.MethodPost, "/messages")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second write should be limited, got %d", w.Code)
	}
	secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || secs < 9 || secs > 10 {
		t.Fatalf("Retry-After should reflect the 10s refill, got %q", w.Header().Get("Retry-After"))
	}

	// Reads are unaffected by the exhausted write bucket.
	for i := 0; i < 5; i++ {
		if w := send(http.MethodGet, "/listings"); w.Code != http.StatusOK {
			t.Fatalf("read %d limited: %d", i, w.Code)
		}
	}
}

func TestRetryAfter_Bounds(t *testing.T) {
	now := time.Now()
	if got := retryAfter(rate.NewLimiter(0, 1), now); got != 3600 {
		t.Fatalf("zero limit: %d", got)
	}
	full := rate.NewLimiter(1, 1)
	if got := retryAfter(full, now); got != 1 {
		t.Fatalf("available token: %d", got)
	}
	slow := rate.NewLimiter(rate.Every(2*time.Hour), 1)
	slow.AllowN(now, 1)
	if got := retryAfter(slow, now); got != 3600 {
		t.Fatalf("capped: %d", got)
	}
}
