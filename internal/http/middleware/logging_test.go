package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureLogger swaps the global logger for one writing JSON lines to a buffer.
func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(ln), &m); err != nil {
			t.Fatalf("log line is not json: %q", ln)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/listings", func(c *gin.Context) {
		seen = RequestIDFrom(c)
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"missing", "", false},
		{"kept", "web-7f3a.2", true},
		{"uuid", "123e4567-e89b-12d3-a456-426614174000", true},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
		{"spaces", "abc 123", false},
		{"control chars", "abc\x00def", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/listings", nil)
			if tc.incoming != "" {
				req.Header["X-Request-Id"] = []string{tc.incoming}
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got == "" || got != seen {
				t.Fatalf("header %q and context %q must match and be set", got, seen)
			}
			if tc.keep && got != tc.incoming {
				t.Fatalf("expected %q to be kept, got %q", tc.incoming, got)
			}
			if !tc.keep && got == tc.incoming {
				t.Fatalf("expected %q to be replaced", tc.incoming)
			}
		})
	}
}

func TestRequestIDFrom_Empty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if RequestIDFrom(c) != "" {
		t.Fatal("no id outside RequestID()")
	}
	c.Set(requestIDKey, 12)
	if RequestIDFrom(c) != "" {
		t.Fatal("non-string id should read as empty")
	}
}

func TestContextLogger_TagsServiceLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), ContextLogger())
	r.POST("/transactions/:id/confirm", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("transaction confirmed")
		LoggerFrom(c).Info().Msg("from handler")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/transactions/4/confirm", nil)
	req.Header.Set(requestIDHeader, "rid-ctx")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("want the two handler lines and no access line, got %d", len(lines))
	}
	for _, e := range lines {
		if e["request_id"] != "rid-ctx" || e["route"] != "/transactions/:id/confirm" || e["method"] != "POST" {
			t.Fatalf("missing request fields: %v", e)
		}
	}
}

func TestContextLogger_UnmatchedRouteUsesRawPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), ContextLogger())
	r.NoRoute(func(c *gin.Context) {
		LoggerFrom(c).Warn().Msg("no route")
		c.Status(http.StatusNotFound)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nada", nil))

	lines := logLines(t, buf)
	if len(lines) != 1 || lines[0]["route"] != "/nada" {
		t.Fatalf("unexpected log: %v", lines)
	}
}

func TestLoggerFrom_FallsBackToGlobal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	LoggerFrom(c).Info().Msg("plain")
	lines := logLines(t, buf)
	if len(lines) != 1 || lines[0]["message"] != "plain" {
		t.Fatalf("unexpected: %v", lines)
	}
	if _, ok := lines[0]["request_id"]; ok {
		t.Fatal("global logger should not carry request fields")
	}
}

func TestRecovery_EnvelopeAndErrorCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	var code string
	r.Use(RequestID(), ContextLogger(), func(c *gin.Context) {
		c.Next()
		code = errorCodeFrom(c)
	}, Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(requestIDHeader, "rid-panic")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["request_id"] != "rid-panic" || body["code"] != "internal_error" {
		t.Fatalf("unexpected body: %v", body)
	}
	if code != "internal_error" {
		t.Fatalf("error code not tagged for metrics: %q", code)
	}
	lines := logLines(t, buf)
	if len(lines) != 1 || lines[0]["message"] != "panic recovered" || lines[0]["stack"] == nil {
		t.Fatalf("expected one panic line with stack, got %v", lines)
	}
}

func TestRecovery_AfterWriteKeepsBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	captureLogger(t)

	r := gin.New()
	r.Use(Recovery())
	r.GET("/stream", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if w.Body.String() != "partial" {
		t.Fatalf("no envelope may follow a written body, got %q", w.Body.String())
	}
}
