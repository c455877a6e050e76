package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/eve-on-safari/internal/config"
	"github.com/yourusername/eve-on-safari/internal/reqctx"
	"github.com/yourusername/eve-on-safari/internal/security"
	"github.com/yourusername/eve-on-safari/internal/seclog"
)

type stubVerifier struct {
	principal *Principal
	err       error
	panics    bool
	seen      string
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	s.seen = token
	if s.panics {
		panic("boom")
	}
	return s.principal, s.err
}

func newTestManager(v Verifier, env map[string]string) (*Manager, *bytes.Buffer) {
	var logs bytes.Buffer
	policy := config.NewResolverFunc(func(key string) string { return env[key] })
	enforcer := security.NewEnforcer(policy, seclog.New(&logs, &logs))
	return NewManager(v, enforcer), &logs
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":        "abc",
		"bearer   abc  ":    "abc",
		"  BEARER xyz.123 ": "xyz.123",
	}
	for header, want := range cases {
		got, ok := BearerToken(header)
		if !ok || got != want {
			t.Fatalf("BearerToken(%q) = %q, %v", header, got, ok)
		}
	}
	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic abc", "Token abc"} {
		if _, ok := BearerToken(header); ok {
			t.Fatalf("BearerToken(%q) should fail", header)
		}
	}
}

func TestRequireAuthenticatedUserMissingBearer(t *testing.T) {
	m, logs := newTestManager(&stubVerifier{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)

	session, rej := m.RequireAuthenticatedUser(req, "rid")
	if session != nil || rej == nil {
		t.Fatal("expected rejection")
	}
	if rej.Status != http.StatusUnauthorized || rej.Code != security.CodeAuthRequired {
		t.Fatalf("unexpected rejection: %#v", rej)
	}
	if !strings.Contains(logs.String(), "auth.missing_bearer") {
		t.Fatalf("expected log, got %q", logs.String())
	}
}

func TestRequireAuthenticatedUserInvalidToken(t *testing.T) {
	cases := map[string]*stubVerifier{
		"verifier error":   {err: errors.New("jwt expired")},
		"no principal":     {},
		"empty id":         {principal: &Principal{Email: "a@b.co"}},
		"transport failed": {err: context.DeadlineExceeded},
		"panic":            {panics: true},
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			m, logs := newTestManager(v, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
			req.Header.Set("Authorization", "Bearer tok-1")

			_, rej := m.RequireAuthenticatedUser(req, "rid")
			if rej == nil || rej.Status != http.StatusUnauthorized || rej.Code != security.CodeInvalidAuthToken {
				t.Fatalf("expected 401 invalid_auth_token, got %#v", rej)
			}
			if !strings.Contains(logs.String(), "auth.invalid_token") {
				t.Fatalf("expected log, got %q", logs.String())
			}
		})
	}
}

func TestRequireAuthenticatedUserSuccess(t *testing.T) {
	v := &stubVerifier{principal: &Principal{ID: "u-1", Email: "asha@example.com"}}
	m, _ := newTestManager(v, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	req.Header.Set("Authorization", "bearer tok-1")

	session, rej := m.RequireAuthenticatedUser(req, "rid")
	if rej != nil {
		t.Fatalf("unexpected rejection: %#v", rej)
	}
	if session.Token != "tok-1" || session.Principal.ID != "u-1" || v.seen != "tok-1" {
		t.Fatalf("unexpected session: %#v", session)
	}
}

func TestRequireAdminUser(t *testing.T) {
	env := map[string]string{config.EnvAdminEmails: "eve@eveonsafari.com"}

	admin := &stubVerifier{principal: &Principal{ID: "u-1", Email: "Eve@EveOnSafari.com"}}
	m, _ := newTestManager(admin, env)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/transactions/x", nil)
	req.Header.Set("Authorization", "Bearer tok")
	if _, rej := m.RequireAdminUser(req, "rid"); rej != nil {
		t.Fatalf("admin should pass: %#v", rej)
	}

	guest := &stubVerifier{principal: &Principal{ID: "u-2", Email: "guest@example.com"}}
	m, logs := newTestManager(guest, env)
	_, rej := m.RequireAdminUser(req, "rid")
	if rej == nil || rej.Status != http.StatusForbidden || rej.Code != security.CodeAdminRequired {
		t.Fatalf("expected 403 admin_required, got %#v", rej)
	}
	if !strings.Contains(logs.String(), "auth.admin_denied") || !strings.Contains(logs.String(), "u-2") {
		t.Fatalf("expected admin_denied log with user id, got %q", logs.String())
	}

	noEmail := &stubVerifier{principal: &Principal{ID: "u-3"}}
	m, _ = newTestManager(noEmail, env)
	if _, rej := m.RequireAdminUser(req, "rid"); rej == nil {
		t.Fatal("principal without email must not be admin")
	}
}

func TestIsEmailOwnedByUser(t *testing.T) {
	p := &Principal{ID: "u", Email: "Asha@Example.com "}
	if !IsEmailOwnedByUser(" asha@example.COM", p) {
		t.Fatal("expected case-insensitive trimmed match")
	}
	if IsEmailOwnedByUser("other@example.com", p) {
		t.Fatal("different email must not match")
	}
	if IsEmailOwnedByUser("", &Principal{ID: "u"}) {
		t.Fatal("empty emails must not match")
	}
	if IsEmailOwnedByUser("asha@example.com", nil) {
		t.Fatal("nil principal must not match")
	}
}

func TestRequireLoginMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := &stubVerifier{principal: &Principal{ID: "u-1", Email: "asha@example.com"}}
	m, _ := newTestManager(v, nil)

	router := gin.New()
	router.Use(reqctx.Middleware())
	router.GET("/me", m.RequireLogin(), func(c *gin.Context) {
		session, ok := SessionFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": session.Principal.ID})
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body security.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.ErrorCode != security.CodeAuthRequired || body.RequestID == "" {
		t.Fatalf("unexpected body: %#v", body)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "u-1") {
		t.Fatalf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
}
