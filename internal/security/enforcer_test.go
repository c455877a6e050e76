package security

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yourusername/eve-on-safari/internal/config"
	"github.com/yourusername/eve-on-safari/internal/seclog"
)

func newTestEnforcer(env map[string]string) (*Enforcer, *bytes.Buffer) {
	var logs bytes.Buffer
	policy := config.NewResolverFunc(func(key string) string { return env[key] })
	return NewEnforcer(policy, seclog.New(&logs, &logs)), &logs
}

func TestEnforceSameOriginRejectsMissingOrigin(t *testing.T) {
	e, logs := newTestEnforcer(map[string]string{config.EnvAllowedOrigins: "https://eveonsafari.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/plan", nil)

	rej := e.EnforceSameOrigin(req, "req-1")
	if rej == nil {
		t.Fatal("expected rejection without Origin header")
	}
	if rej.Status != http.StatusForbidden || rej.Code != CodeOriginNotAllowed {
		t.Fatalf("unexpected rejection: %#v", rej)
	}
	if rej.RequestID != "req-1" || rej.Header.Get("X-Request-Id") != "req-1" {
		t.Fatalf("request id missing from rejection: %#v", rej)
	}
	if !strings.Contains(logs.String(), "csrf.origin_rejected") {
		t.Fatalf("expected rejection to be logged, got %q", logs.String())
	}
}

func TestEnforceSameOriginAllowsConfiguredOrigin(t *testing.T) {
	e, _ := newTestEnforcer(map[string]string{config.EnvAllowedOrigins: "https://eveonsafari.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/plan", nil)
	req.Header.Set("Origin", "https://eveonsafari.com")
	if rej := e.EnforceSameOrigin(req, "req-2"); rej != nil {
		t.Fatalf("expected allowed origin, got %#v", rej)
	}

	req.Header.Set("Origin", "HTTPS://EVEONSAFARI.COM")
	if rej := e.EnforceSameOrigin(req, "req-3"); rej != nil {
		t.Fatalf("origin match must be case-insensitive, got %#v", rej)
	}

	req.Header.Set("Origin", "https://eveonsafari.com.evil.example")
	if rej := e.EnforceSameOrigin(req, "req-4"); rej == nil {
		t.Fatal("expected suffix-extended origin to be rejected")
	}
}

func TestSafeMethodsBypassChecks(t *testing.T) {
	e, _ := newTestEnforcer(map[string]string{config.EnvAppEnv: "production"})
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		req := httptest.NewRequest(method, "/api/plan", nil)
		req.Header.Set("Origin", "https://evil.example")
		req.Header.Set(CSRFHeader, "nope")
		if rej := e.EnforceSameOrigin(req, "r"); rej != nil {
			t.Fatalf("%s: same-origin must not reject safe methods", method)
		}
		if rej := e.EnforceCSRFToken(req, "r"); rej != nil {
			t.Fatalf("%s: csrf must not reject safe methods", method)
		}
	}
}

func TestEnforceCSRFToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		cookie string
		code   string
	}{
		{name: "match", header: "abc123", cookie: "eos_csrf_token=abc123"},
		{name: "one char diff", header: "abc124", cookie: "eos_csrf_token=abc123", code: CodeInvalidCSRFToken},
		{name: "truncated", header: "abc12", cookie: "eos_csrf_token=abc123", code: CodeInvalidCSRFToken},
		{name: "missing header", cookie: "eos_csrf_token=abc123", code: CodeMissingCSRFToken},
		{name: "missing cookie", header: "abc123", cookie: "other=abc123", code: CodeMissingCSRFCookie},
		{name: "empty cookie", header: "abc123", cookie: "eos_csrf_token=", code: CodeMissingCSRFCookie},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, logs := newTestEnforcer(map[string]string{})
			req := httptest.NewRequest(http.MethodPost, "/api/newsletter", nil)
			if tc.header != "" {
				req.Header.Set("X-CSRF-Token", tc.header)
			}
			if tc.cookie != "" {
				req.Header.Set("Cookie", tc.cookie)
			}
			rej := e.EnforceCSRFToken(req, "req")
			if tc.code == "" {
				if rej != nil {
					t.Fatalf("expected success, got %#v", rej)
				}
				return
			}
			if rej == nil || rej.Code != tc.code || rej.Status != http.StatusForbidden {
				t.Fatalf("expected %s, got %#v", tc.code, rej)
			}
			if logs.Len() == 0 {
				t.Fatal("every rejection must be logged")
			}
		})
	}
}

func TestTokenMismatchLogsEvent(t *testing.T) {
	e, logs := newTestEnforcer(map[string]string{})
	req := httptest.NewRequest(http.MethodDelete, "/api/x", nil)
	req.Header.Set("X-CSRF-Token", "aaaa")
	req.Header.Set("Cookie", "eos_csrf_token=bbbb")
	if rej := e.EnforceCSRFToken(req, "req"); rej == nil {
		t.Fatal("expected mismatch")
	}
	if !strings.Contains(logs.String(), "csrf.token_mismatch") {
		t.Fatalf("expected csrf.token_mismatch log, got %q", logs.String())
	}
	if strings.Contains(logs.String(), "bbbb") {
		t.Fatal("token values must never be logged")
	}
}

func TestTokensEqual(t *testing.T) {
	if !TokensEqual("abc", "abc") {
		t.Fatal("equal tokens must compare equal")
	}
	if TokensEqual("abc", "abcd") || TokensEqual("abc", "abd") || TokensEqual("", "a") {
		t.Fatal("different tokens must not compare equal")
	}
}

func TestAPIHeaders(t *testing.T) {
	e, _ := newTestEnforcer(map[string]string{config.EnvAllowedOrigins: "https://eveonsafari.com"})

	req := httptest.NewRequest(http.MethodGet, "/api/plan", nil)
	h := e.APIHeaders(req, "rid")
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" {
		t.Fatalf("missing cache headers: %#v", h)
	}
	if h.Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("no CORS headers without Origin")
	}

	req.Header.Set("Origin", "https://eveonsafari.com")
	h = e.APIHeaders(req, "rid")
	if h.Get("Access-Control-Allow-Origin") != "https://eveonsafari.com" {
		t.Fatalf("origin must be echoed exactly: %#v", h)
	}
	if h.Get("Access-Control-Allow-Credentials") != "true" || h.Get("Vary") != "Origin" {
		t.Fatalf("missing credential/vary headers: %#v", h)
	}
	if h.Get("Access-Control-Allow-Headers") == "" || h.Get("Access-Control-Allow-Methods") == "" {
		t.Fatalf("missing allow lists: %#v", h)
	}

	req.Header.Set("Origin", "https://evil.example")
	h = e.APIHeaders(req, "rid")
	if h.Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("disallowed origin must not receive CORS headers")
	}
}

func TestPreflight(t *testing.T) {
	e, _ := newTestEnforcer(map[string]string{config.EnvAllowedOrigins: "https://eveonsafari.com"})

	req := httptest.NewRequest(http.MethodOptions, "/api/plan", nil)
	if rej, _ := e.Preflight(req, "rid"); rej == nil || rej.Status != http.StatusForbidden {
		t.Fatalf("expected 403 without origin, got %#v", rej)
	}

	req.Header.Set("Origin", "https://eveonsafari.com")
	rej, h := e.Preflight(req, "rid")
	if rej != nil {
		t.Fatalf("unexpected rejection: %#v", rej)
	}
	if h.Get("Access-Control-Allow-Origin") != "https://eveonsafari.com" {
		t.Fatalf("unexpected preflight headers: %#v", h)
	}
}

func TestRejectionWrite(t *testing.T) {
	e, _ := newTestEnforcer(map[string]string{})
	req := httptest.NewRequest(http.MethodPost, "/api/plan", nil)
	rej := e.Reject(req, "rid-9", http.StatusForbidden, CodeOriginNotAllowed, "Request origin is not allowed.")

	rec := httptest.NewRecorder()
	rej.Write(rec)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") != "rid-9" {
		t.Fatalf("missing request id header: %#v", rec.Header())
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.OK || body.ErrorCode != CodeOriginNotAllowed || body.RequestID != "rid-9" || body.Error == "" {
		t.Fatalf("unexpected body: %#v", body)
	}
}
