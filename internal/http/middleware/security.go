// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders. Responses fall into two profiles:
//
//   - API responses (JSON): nosniff, no framing, no referrer, optional
//     browser feature policy, no-store on per-user paths (session, inbox,
//     profiles) and HSTS when served over HTTPS.
//   - Media responses (user-uploaded garment photos under MediaPrefix): the
//     same baseline plus a sandboxing CSP so an uploaded file can never run
//     as a document, cross-origin embedding for the web client, and a long
//     immutable cache lifetime since object names are unique per upload.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
//
// HSTS is only emitted for HTTPS requests and only when EnableHSTS is set;
// HSTSMaxAge defaults to 180 days. NoStore applies no-store to every
// response, NoStorePrefixes only to matching paths. EnablePolicy adds
// Permissions-Policy and X-Permitted-Cross-Domain-Policies.
type SecurityOptions struct {
	EnableHSTS      bool
	HSTSMaxAge      time.Duration
	NoStore         bool
	NoStorePrefixes []string
	EnablePolicy    bool

	MediaPrefix   string        // e.g. "/media/"; empty disables the media profile
	MediaCacheTTL time.Duration // default 30 days
}

const (
	mediaCSP  = "default-src 'none'; img-src 'self'; sandbox"
	policyHdr = "geolocation=(), microphone=(), camera=(), payment=()"
)

// SecurityHeaders returns the hardening middleware described above. If the
// response already carries X-Request-ID it is added to
// Access-Control-Expose-Headers so browser clients can read it.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	hsts := ""
	if opt.EnableHSTS {
		maxAge := opt.HSTSMaxAge
		if maxAge <= 0 {
			maxAge = 180 * 24 * time.Hour
		}
		hsts = "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"
	}
	mediaTTL := opt.MediaCacheTTL
	if mediaTTL <= 0 {
		mediaTTL = 30 * 24 * time.Hour
	}
	mediaCache := "public, max-age=" + strconv.Itoa(int(mediaTTL.Seconds())) + ", immutable"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		path := c.Request.URL.Path

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		if opt.EnablePolicy {
			h.Set("Permissions-Policy", policyHdr)
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		switch {
		case opt.MediaPrefix != "" && strings.HasPrefix(path, opt.MediaPrefix):
			h.Set("Content-Security-Policy", mediaCSP)
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")
			h.Set("Cache-Control", mediaCache)
		case opt.NoStore || hasAnyPrefix(path, opt.NoStorePrefixes):
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		if hsts != "" && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		if h.Get(requestIDHeader) != "" {
			const hdr = "Access-Control-Expose-Headers"
			switch cur := h.Get(hdr); {
			case cur == "":
				h.Set(hdr, requestIDHeader)
			case !strings.Contains(cur, requestIDHeader):
				h.Set(hdr, cur+", "+requestIDHeader)
			}
		}

		c.Next()
	}
}

// isHTTPS reports whether the request arrived over TLS directly or through
// a proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func hasAnyPrefix(p string, prefixes []string) bool {
	for _, pre := range prefixes {
		if pre != "" && strings.HasPrefix(p, pre) {
			return true
		}
	}
	return false
}
