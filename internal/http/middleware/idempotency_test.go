package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type lookupCall struct {
	user       uint
	scope, key string
}

// fakeLookup records calls and answers from a fixed set of stored keys.
type fakeLookup struct {
	stored map[lookupCall]bool
	err    error
	calls  []lookupCall
}

func (f *fakeLookup) fn(_ context.Context, uid uint, scope, key string, _ time.Time) (bool, error) {
	call := lookupCall{uid, scope, key}
	f.calls = append(f.calls, call)
	if f.err != nil {
		return false, f.err
	}
	return f.stored[call], nil
}

type idemResult struct {
	key    string
	hasKey bool
	replay bool
	bypass bool
}

func idemRouter(opts IdempotencyOptions, lk *fakeLookup, uid uint, out *idemResult) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if uid != 0 {
			c.Set(ctxKeyUserID, uid)
		}
		c.Next()
	})
	var fn IdempotencyLookup
	if lk != nil {
		fn = lk.fn
	}
	r.Use(IdempotencyValidator(opts, fn))
	h := func(c *gin.Context) {
		out.key, out.hasKey = GetIdempotencyKey(c)
		out.replay = IsReplay(c)
		out.bypass = IsRateBypass(c)
		c.Status(http.StatusCreated)
	}
	r.GET("/listings/:id", h)
	r.POST("/listings/:id/exchange", h)
	r.POST("/listings/:id/purchase", h)
	r.POST("/campaigns/:id/donate", h)
	r.POST("/transactions", h)
	return r
}

func sendIdem(r *gin.Engine, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyValidator_ReplayFlagsScopedPerTarget(t *testing.T) {
	lk := &fakeLookup{stored: map[lookupCall]bool{
		{user: 5, scope: "exchange:42", key: "intercambio-1"}: true,
	}}
	var got idemResult
	r := idemRouter(IdempotencyOptions{}, lk, 5, &got)

	w := sendIdem(r, http.MethodPost, "/listings/42/exchange", "intercambio-1")
	if w.Code != http.StatusCreated || !got.hasKey || got.key != "intercambio-1" {
		t.Fatalf("key not stashed: %d %+v", w.Code, got)
	}
	if !got.replay || !got.bypass {
		t.Fatalf("stored key should be a replay that bypasses the limiter: %+v", got)
	}

	// same key against another listing is a different operation
	got = idemResult{}
	sendIdem(r, http.MethodPost, "/listings/43/exchange", "intercambio-1")
	if got.replay || got.bypass {
		t.Fatalf("key must not replay across targets: %+v", got)
	}
	if last := lk.calls[len(lk.calls)-1]; last.scope != "exchange:43" {
		t.Fatalf("lookup scope = %q", last.scope)
	}
}

func TestIdempotencyValidator_SkipsWithoutKeyOrOnSafeMethods(t *testing.T) {
	lk := &fakeLookup{}
	var got idemResult
	r := idemRouter(IdempotencyOptions{}, lk, 5, &got)

	sendIdem(r, http.MethodPost, "/listings/1/purchase", "")
	if got.hasKey || got.replay {
		t.Fatalf("no header, no flags: %+v", got)
	}
	sendIdem(r, http.MethodGet, "/listings/1", "lectura-1")
	if got.hasKey {
		t.Fatalf("GET must ignore the header: %+v", got)
	}
	if len(lk.calls) != 0 {
		t.Fatalf("lookup called %d times", len(lk.calls))
	}
}

func TestIdempotencyValidator_AnonymousAndLookupErrors(t *testing.T) {
	lk := &fakeLookup{stored: map[lookupCall]bool{{user: 0, scope: "transactions", key: "k"}: true}}
	var got idemResult
	sendIdem(idemRouter(IdempotencyOptions{}, lk, 0, &got), http.MethodPost, "/transactions", "k")
	if !got.hasKey || got.replay || len(lk.calls) != 0 {
		t.Fatalf("anonymous requests keep the key but never look it up: %+v calls=%d", got, len(lk.calls))
	}

	failing := &fakeLookup{err: errors.New("db locked")}
	got = idemResult{}
	w := sendIdem(idemRouter(IdempotencyOptions{}, failing, 9, &got), http.MethodPost, "/transactions", "k")
	if w.Code != http.StatusCreated || got.replay {
		t.Fatalf("lookup errors fall through as a fresh request: %d %+v", w.Code, got)
	}

	got = idemResult{}
	sendIdem(idemRouter(IdempotencyOptions{}, nil, 9, &got), http.MethodPost, "/transactions", "k")
	if !got.hasKey || got.replay {
		t.Fatalf("nil lookup: %+v", got)
	}
}

func TestIdempotencyValidator_RejectsBadKeys(t *testing.T) {
	var got idemResult
	r := idemRouter(IdempotencyOptions{MaxLen: 16}, &fakeLookup{}, 5, &got)

	for _, key := range []string{strings.Repeat("a", 17), "con espacios", "emoji-☕", "a/b"} {
		w := sendIdem(r, http.MethodPost, "/transactions", key)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("key %q: %d %s", key, w.Code, w.Body.String())
		}
	}
	for _, key := range []string{"abc", "A.b_c~d-e:f", strings.Repeat("z", 16)} {
		if w := sendIdem(r, http.MethodPost, "/transactions", key); w.Code != http.StatusCreated {
			t.Fatalf("key %q rejected: %d", key, w.Code)
		}
	}
}

func TestIdempotencyValidator_CustomScope(t *testing.T) {
	lk := &fakeLookup{}
	var got idemResult
	opts := IdempotencyOptions{Scope: func(*gin.Context) string { return "fixed" }}
	sendIdem(idemRouter(opts, lk, 3, &got), http.MethodPost, "/listings/8/purchase", "p-1")
	if len(lk.calls) != 1 || lk.calls[0].scope != "fixed" {
		t.Fatalf("custom scope ignored: %+v", lk.calls)
	}
}

func TestProposalScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var scope string
	h := func(c *gin.Context) { scope = ProposalScope(c) }
	r.POST("/api/v1/listings/:id/exchange", h)
	r.POST("/api/v1/listings/:id/donate", h)
	r.POST("/api/v1/campaigns/:id/donate", h)
	r.POST("/api/v1/transactions/", h)

	cases := map[string]string{
		"/api/v1/listings/42/exchange": "exchange:42",
		"/api/v1/listings/7/donate":    "donate:7",
		"/api/v1/campaigns/7/donate":   "campaign-donate:7",
		"/api/v1/transactions/":        "transactions",
	}
	for path, want := range cases {
		scope = ""
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
		if scope != want {
			t.Errorf("%s: scope %q, want %q", path, scope, want)
		}
	}
}

func TestIdempotencyContextAccessors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if _, ok := GetIdempotencyKey(c); ok || IsReplay(c) {
		t.Fatal("empty context has no key and no replay")
	}
	c.Set(ctxKeyIdemKey, 7)
	c.Set(ctxKeyIdemReplay, "yes")
	if _, ok := GetIdempotencyKey(c); ok || IsReplay(c) {
		t.Fatal("wrongly typed values read as absent")
	}
}
