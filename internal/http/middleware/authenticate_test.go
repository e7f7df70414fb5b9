package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/ecoprenda-backend/internal/auth"
	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

type whoami struct {
	id   uint
	role domain.Role
	exp  bool
}

func authRouter(parser TokenParser, allowHeader bool, seen *whoami) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Authenticate(parser, allowHeader))
	r.GET("/me", func(c *gin.Context) {
		_, hasExp := TokenExpiryFrom(c)
		*seen = whoami{id: UserIDFrom(c), role: RoleFrom(c), exp: hasExp}
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthenticate_BearerToken(t *testing.T) {
	iss := auth.NewIssuer("0123456789abcdef0123", "ecoprenda", time.Hour)
	tok, _, err := iss.Issue(42, domain.RoleModerator)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var seen whoami
	r := authRouter(iss, false, &seen)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("valid token -> %d", w.Code)
	}
	if seen.id != 42 || seen.role != domain.RoleModerator || !seen.exp {
		t.Fatalf("unexpected identity: %+v", seen)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer not-a-jwt")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token -> %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate challenge")
	}
}

func TestAuthenticate_HeaderFallback(t *testing.T) {
	var seen whoami

	r := authRouter(nil, true, &seen)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, " 7 ")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || seen.id != 7 || seen.exp {
		t.Fatalf("header identity: code=%d seen=%+v", w.Code, seen)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "abc")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("non-numeric header -> %d, want 401", w.Code)
	}

	// header ignored when not allowed
	r = authRouter(nil, false, &seen)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "7")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || seen.id != 0 {
		t.Fatalf("disallowed header: code=%d seen=%+v", w.Code, seen)
	}
}

func TestAuthenticate_AnonymousAndUnconfigured(t *testing.T) {
	var seen whoami
	r := authRouter(nil, true, &seen)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusNoContent || seen.id != 0 || seen.role != "" {
		t.Fatalf("anonymous: code=%d seen=%+v", w.Code, seen)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("token without parser -> %d, want 401", w.Code)
	}
}
