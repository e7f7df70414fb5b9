// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a process-local token-bucket rate limiter. Every
// caller gets two buckets: one for reads and a usually tighter one for
// writes (listings, proposals, transitions, messages), so browsing the
// catalog never eats into the budget for acting on it. Idempotent replays
// marked by IdempotencyValidator skip the limiter entirely.
//
// The limiter guards the single-process SQLite deployment against abuse; it
// is not an authorization mechanism.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity a bucket belongs to, e.g. "user:42".
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys authenticated callers by user id ("user:42") and
// everyone else by client IP ("ip:203.0.113.7").
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if id := UserIDFrom(c); id != 0 {
			return "user:" + strconv.FormatUint(uint64(id), 10)
		}
		return "ip:" + c.ClientIP()
	}
}

// RateOptions configures a RateLimiter.
type RateOptions struct {
	RPS   float64 // read tokens per second
	Burst int     // read bucket size; <= 0 means 1

	// Write budget for POST, PUT, PATCH and DELETE. Zero values reuse the
	// read budget.
	WriteRPS   float64
	WriteBurst int

	Key     keyFunc       // defaults to KeyByUserOrIP
	IdleTTL time.Duration // idle buckets are evicted after this; default 10m
}

type bucketClass uint8

const (
	classRead bucketClass = iota
	classWrite
)

type bucketKey struct {
	id    string
	class bucketClass
}

// visitor is one bucket and the last time it was used.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// gcEvery is the number of lookups between idle-bucket sweeps.
const gcEvery = 5000

// RateLimiter enforces per-caller token buckets. Safe for concurrent use.
type RateLimiter struct {
	read, write limit
	keyFn       keyFunc
	ttl         time.Duration

	mu       sync.Mutex
	visitors map[bucketKey]*visitor
	lookups  uint64
}

type limit struct {
	rps   rate.Limit
	burst int
}

// NewRateLimiter builds a limiter from opts.
func NewRateLimiter(opts RateOptions) *RateLimiter {
	read := limit{rps: rate.Limit(opts.RPS), burst: max(opts.Burst, 1)}
	write := read
	if opts.WriteRPS > 0 {
		write.rps = rate.Limit(opts.WriteRPS)
	}
	if opts.WriteBurst > 0 {
		write.burst = opts.WriteBurst
	}
	keyFn := opts.Key
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RateLimiter{
		read:     read,
		write:    write,
		keyFn:    keyFn,
		ttl:      ttl,
		visitors: make(map[bucketKey]*visitor),
	}
}

// bucket returns the limiter for k, creating it on first use. Idle buckets
// are swept before the lookup so a stale bucket can be replaced by a fresh one.
func (rl *RateLimiter) bucket(k bucketKey, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= gcEvery {
		for key, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, key)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[k]; ok {
		v.lastSeen = now
		return v.limiter
	}
	l := rl.read
	if k.class == classWrite {
		l = rl.write
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	rl.visitors[k] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that must not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the Gin middleware. A denied request is answered with
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: <seconds until the next token>
//	{"request_id": "...", "code": "rate_limited", "message": "rate limit exceeded"}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		class := classRead
		if unsafeMethod(c.Request.Method) {
			class = classWrite
		}
		now := time.Now()
		lim := rl.bucket(bucketKey{id: rl.keyFn(c), class: class}, now)

		if lim.AllowN(now, 1) {
			c.Next()
			return
		}

		c.Header("Retry-After", strconv.Itoa(retryAfter(lim, now)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter is the whole number of seconds until lim refills one token,
// at least 1. A limiter that never refills reports one hour.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	if lim.Limit() <= 0 {
		return 3600
	}
	missing := 1 - lim.TokensAt(now)
	if missing <= 0 {
		return 1
	}
	secs := math.Ceil(missing / float64(lim.Limit()))
	if secs > 3600 {
		return 3600
	}
	return max(int(secs), 1)
}
