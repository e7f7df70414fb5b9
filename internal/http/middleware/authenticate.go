// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. A Bearer token is verified and its
// claims stored in the Gin context; in development the X-User-ID header may
// stand in for a token. Requests without credentials continue anonymously and
// handlers that need an identity answer 401 themselves.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/ecoprenda-backend/internal/auth"
	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

// HeaderUserID is the development identity header honored when allowed.
const HeaderUserID = "X-User-ID"

const (
	ctxKeyUserID   = "userID"
	ctxKeyRole     = "role"
	ctxKeyTokenExp = "token.exp"
)

// TokenParser verifies a raw bearer token.
type TokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

// Authenticate stores the caller identity in the context.
//
//   - "Authorization: Bearer <jwt>" is parsed with parser; a bad token is a 401.
//   - Without a token and with allowHeader, a positive integer X-User-ID is used.
//   - Otherwise the request proceeds without identity.
//
// parser may be nil, in which case bearer tokens are rejected.
func Authenticate(parser TokenParser, allowHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := bearer(c.GetHeader("Authorization")); ok {
			if parser == nil {
				unauthorized(c, "token authentication is not configured")
				return
			}
			claims, err := parser.Parse(raw)
			if err != nil {
				unauthorized(c, "invalid or expired token")
				return
			}
			c.Set(ctxKeyUserID, claims.UserID)
			c.Set(ctxKeyRole, claims.Role)
			if claims.ExpiresAt != nil {
				c.Set(ctxKeyTokenExp, claims.ExpiresAt.Time)
			}
			c.Next()
			return
		}

		if allowHeader {
			if v := strings.TrimSpace(c.GetHeader(HeaderUserID)); v != "" {
				id, err := strconv.ParseUint(v, 10, 64)
				if err != nil || id == 0 {
					unauthorized(c, HeaderUserID+" must be a positive integer")
					return
				}
				c.Set(ctxKeyUserID, uint(id))
			}
		}
		c.Next()
	}
}

// UserIDFrom returns the authenticated user id, or 0 for anonymous requests.
func UserIDFrom(c *gin.Context) uint {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}

// RoleFrom returns the role claimed by the token, if any. It is informational;
// services resolve the role from the store.
func RoleFrom(c *gin.Context) domain.Role {
	if v, ok := c.Get(ctxKeyRole); ok {
		if r, ok := v.(domain.Role); ok {
			return r
		}
	}
	return ""
}

// TokenExpiryFrom returns the expiry of the bearer token used by the request.
func TokenExpiryFrom(c *gin.Context) (time.Time, bool) {
	if v, ok := c.Get(ctxKeyTokenExp); ok {
		if t, ok := v.(time.Time); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func bearer(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="ecoprenda"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
