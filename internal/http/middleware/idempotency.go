// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for transaction proposals. It
// validates an Idempotency-Key request header, optionally asks a lookup
// whether (user, scope, key) was already processed, and annotates the Gin
// context so downstream handlers can:
//   - read the normalized key (GetIdempotencyKey)
//   - detect replayed requests (IsReplay)
//   - bypass rate limiting when a replay is served
//
// The scope names the endpoint family and target, e.g. "exchange:42" for an
// exchange proposal against listing 42. Handlers compute the same scope with
// ProposalScope so the record they store is the one the lookup finds.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: true when a stored replay exists
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

// GetIdempotencyKey returns the validated key stored by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the lookup found a completed request for this
// (user, scope, key).
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
	// Scope derives the record scope from the request. Defaults to ProposalScope.
	Scope func(*gin.Context) string
}

// IdempotencyLookup answers whether a still-valid record exists for
// (userID, scope, key) at now. TTL is enforced by the implementation.
type IdempotencyLookup func(ctx context.Context, userID uint, scope, key string, now time.Time) (exists bool, err error)

// ProposalScope returns "<last route segment>:<:id param>", e.g.
// "exchange:42" for POST /listings/42/exchange. Campaign routes are prefixed,
// so POST /campaigns/7/donate yields "campaign-donate:7". Routes without :id
// yield just the segment.
func ProposalScope(c *gin.Context) string {
	p := strings.TrimRight(c.FullPath(), "/")
	if p == "" {
		p = strings.TrimRight(c.Request.URL.Path, "/")
	}
	seg := p[strings.LastIndex(p, "/")+1:]
	if strings.Contains(p, "/campaigns/") {
		seg = "campaign-" + seg
	}
	if id := c.Param("id"); id != "" {
		return seg + ":" + id
	}
	return seg
}

// IdempotencyValidator validates the Idempotency-Key header of unsafe
// requests, stashes it, and marks replays found by lookup.
//
//   - Header absent or safe method: no-op.
//   - Invalid header: 400 bad_idempotency_key.
//   - Lookup hit for an authenticated user: replay + rate-bypass flags.
//
// The cached resource itself is served by the handler.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	scopeOf := opts.Scope
	if scopeOf == nil {
		scopeOf = ProposalScope
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || !unsafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			SetErrorCode(c, "bad_idempotency_key")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if uid := UserIDFrom(c); lookup != nil && uid != 0 {
			if exists, err := lookup(c.Request.Context(), uid, scopeOf(c), key, time.Now().UTC()); err == nil && exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
