package security

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/eve-on-safari/internal/config"
	"github.com/yourusername/eve-on-safari/internal/reqctx"
)

func newTestRouter(e *Enforcer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(reqctx.Middleware())
	api := router.Group("/api", e.CSRFCookie(), e.Middleware())
	api.OPTIONS("/*any", func(c *gin.Context) {})
	api.POST("/plan", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	api.GET("/csrf", func(c *gin.Context) {
		token, err := e.EnsureCookie(c)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "csrfToken": token})
	})
	return router
}

func TestMiddlewareAllowsValidRequest(t *testing.T) {
	e, _ := newTestEnforcer(map[string]string{config.EnvAllowedOrigins: "https://eveonsafari.com"})
	router := newTestRouter(e)

	req := httptest.NewRequest(http.MethodPost, "/api/plan", strings.NewReader(`{}`))
	req.Header.Set("Origin", "https://eveonsafari.com")
	req.Header.Set("X-CSRF-Token", "abc123")
	req.Header.Set("Cookie", "eos_csrf_token=abc123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://eveonsafari.com" {
		t.Fatalf("missing CORS header: %#v", rec.Header())
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("missing no-store: %#v", rec.Header())
	}
}

func TestMiddlewareRejectsForeignOrigin(t *testing.T) {
	e, _ := newTestEnforcer(map[string]string{config.EnvAllowedOrigins: "https://eveonsafari.com"})
	router := newTestRouter(e)

	req := httptest.NewRequest(http.MethodPost, "/api/plan", strings.NewReader(`{}`))
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("X-Request-Id", "rid-7")
	req.Header.Set("X-CSRF-Token", "abc123")
	req.Header.Set("Cookie", "eos_csrf_token=abc123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.ErrorCode != CodeOriginNotAllowed || body.RequestID != "rid-7" {
		t.Fatalf("unexpected body: %#v", body)
	}
	if rec.Header().Get("X-Request-Id") != "rid-7" {
		t.Fatalf("missing request id header: %#v", rec.Header())
	}
}

func TestMiddlewarePreflight(t *testing.T) {
	e, _ := newTestEnforcer(map[string]string{config.EnvAllowedOrigins: "https://eveonsafari.com"})
	router := newTestRouter(e)

	req := httptest.NewRequest(http.MethodOptions, "/api/plan", nil)
	req.Header.Set("Origin", "https://eveonsafari.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/plan", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCSRFEndpointIssuesSingleCookie(t *testing.T) {
	e, _ := newTestEnforcer(map[string]string{config.EnvAppEnv: "production"})
	router := newTestRouter(e)

	req := httptest.NewRequest(http.MethodGet, "/api/csrf", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected exactly one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != CSRFCookieName || c.Path != "/" || c.MaxAge != 86400 {
		t.Fatalf("unexpected cookie attributes: %#v", c)
	}
	if !c.Secure || c.HttpOnly || c.SameSite != http.SameSiteStrictMode {
		t.Fatalf("unexpected cookie flags: %#v", c)
	}
	if len(c.Value) != 64 || strings.Contains(c.Value, "-") {
		t.Fatalf("unexpected token format: %q", c.Value)
	}

	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.CSRFToken != c.Value {
		t.Fatalf("body token %q does not match cookie %q", body.CSRFToken, c.Value)
	}
}

func TestEnsureCSRFCookieKeepsExistingValue(t *testing.T) {
	rec := httptest.NewRecorder()
	token, err := EnsureCSRFCookie(rec, "existing", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "existing" {
		t.Fatalf("unexpected token: %q", token)
	}
	if rec.Header().Get("Set-Cookie") != "" {
		t.Fatal("existing cookie must be left untouched")
	}

	rec = httptest.NewRecorder()
	if _, err := EnsureCSRFCookie(rec, "", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set := rec.Header().Get("Set-Cookie"); strings.Contains(set, "Secure") {
		t.Fatalf("cookie must not be Secure outside production: %q", set)
	}
}
