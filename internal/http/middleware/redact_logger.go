// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access log. Marketplace requests
// carry personal data (e-mails at registration, street addresses sent for
// geocoding, Chilean RUT numbers pasted into messages or searches), so every
// value is scrubbed before it reaches the log:
//
//   - bodies are never logged;
//   - sensitive headers and query parameters are replaced wholesale;
//   - other header and query values have ids, e-mails, RUTs and phone
//     numbers substituted;
//   - the client IP is truncated to its network (/24 or /48).
//
// Usage:
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{middleware.HeaderUserID},
//	    SkipPaths:   []string{"/health", "/metrics"},
//	}))
package middleware

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures RedactingLogger.
//
// MaskHeaders and MaskQuery add to the built-in names; matching is
// case-insensitive. SkipPaths are exact request paths that are not logged.
type RedactOptions struct {
	MaskHeaders []string
	MaskQuery   []string
	SkipPaths   []string
}

const redacted = "[REDACTED]"

var (
	defaultMaskHeaders = []string{"authorization", "cookie", "set-cookie"}
	defaultMaskQuery   = []string{"address", "direccion", "email", "token"}
)

// scrubber substitutes personal identifiers inside free text. Order
// matters: UUIDs first so their digit groups never look like phones, and
// RUTs before phones for the same reason.
type scrubber struct {
	patterns []scrubPattern
}

type scrubPattern struct {
	re   *regexp.Regexp
	repl string
}

func newScrubber() scrubber {
	return scrubber{patterns: []scrubPattern{
		{regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`), "[REDACTED:id]"},
		{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
		// 12.345.678-5, 12345678-K
		{regexp.MustCompile(`(?i)\b\d{1,2}\.?\d{3}\.?\d{3}-[\dk]\b`), "[REDACTED:rut]"},
		// +56 9 1234 5678, 212-555-1212, (212) 555-1212
		{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{1,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
	}}
}

func (s scrubber) clean(v string) string {
	if v == "" {
		return v
	}
	for _, p := range s.patterns {
		v = p.re.ReplaceAllString(v, p.repl)
	}
	return v
}

// query scrubs a raw query string pair by pair without decoding values,
// so the log shows exactly what was sent minus the personal parts.
func (s scrubber) query(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	pairs := strings.Split(raw, "&")
	for i, pair := range pairs {
		name, val, hasVal := strings.Cut(pair, "=")
		if !hasVal {
			pairs[i] = s.clean(pair)
			continue
		}
		key, err := url.QueryUnescape(name)
		if err != nil {
			key = name
		}
		if _, ok := mask[strings.ToLower(key)]; ok {
			pairs[i] = name + "=" + redacted
			continue
		}
		pairs[i] = name + "=" + s.clean(val)
	}
	return strings.Join(pairs, "&")
}

// truncateIP keeps the network part of ip: /24 for IPv4, /48 for IPv6.
func truncateIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String() + "/24"
	}
	return parsed.Mask(net.CIDRMask(48, 128)).String() + "/48"
}

func nameSet(defaults, extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(defaults)+len(extra))
	for _, n := range append(append([]string(nil), defaults...), extra...) {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// RedactingLogger returns a Gin middleware that writes one access log line
// per request: route, scrubbed query and headers, status, size, latency,
// user id and truncated client network. 4xx responses log at warn and 5xx
// at error.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	sc := newScrubber()
	maskHeaders := nameSet(defaultMaskHeaders, opts.MaskHeaders)
	maskQuery := nameSet(defaultMaskQuery, opts.MaskQuery)
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				headers[k] = redacted
				continue
			}
			headers[k] = sc.clean(strings.Join(vv, ", "))
		}
		query := sc.query(c.Request.URL.RawQuery, maskQuery)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		status := c.Writer.Status()

		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", sc.clean(c.Errors.String()))
		}
		ev.
			Str("request_id", reqID).
			Uint("user_id", UserIDFrom(c)).
			Str("client", truncateIP(c.ClientIP())).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
