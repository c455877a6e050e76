package security

import (
	"net/http"
	"strings"

	"github.com/yourusername/eve-on-safari/internal/config"
	"github.com/yourusername/eve-on-safari/internal/reqctx"
	"github.com/yourusername/eve-on-safari/internal/seclog"
)

const (
	CSRFCookieName = "eos_csrf_token"
	CSRFHeader     = "X-CSRF-Token"

	allowHeaders  = "Content-Type, Authorization, X-CSRF-Token, X-Request-Id"
	allowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	exposeHeaders = "X-Request-Id, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After"
)

// Enforcer は同一オリジン検証と CSRF 検証を行います。状態は持ちません。
type Enforcer struct {
	policy *config.Resolver
	log    *seclog.Logger
}

// NewEnforcer は Enforcer を作成します。
func NewEnforcer(policy *config.Resolver, logger *seclog.Logger) *Enforcer {
	if policy == nil {
		policy = config.NewResolver()
	}
	if logger == nil {
		logger = seclog.Nop()
	}
	return &Enforcer{policy: policy, log: logger}
}

// Policy は参照しているポリシーを返します。
func (e *Enforcer) Policy() *config.Resolver {
	return e.policy
}

// Logger は記録先を返します。
func (e *Enforcer) Logger() *seclog.Logger {
	return e.log
}

// IsSafeMethod は GET/HEAD/OPTIONS のとき true を返します。
func IsSafeMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// EnforceSameOrigin は状態変更リクエストの Origin が許可オリジンかを検証します。
// 問題なければ nil を返します。
func (e *Enforcer) EnforceSameOrigin(r *http.Request, requestID string) *Rejection {
	if IsSafeMethod(r.Method) {
		return nil
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if e.policy.IsOriginAllowed(origin) {
		return nil
	}
	e.log.Warn("csrf.origin_rejected", e.requestDetails(r, requestID))
	return e.Reject(r, requestID, http.StatusForbidden, CodeOriginNotAllowed, "Request origin is not allowed.")
}

// EnforceCSRFToken はダブルサブミット方式で X-CSRF-Token ヘッダーと Cookie の一致を検証します。
func (e *Enforcer) EnforceCSRFToken(r *http.Request, requestID string) *Rejection {
	if IsSafeMethod(r.Method) {
		return nil
	}

	header := strings.TrimSpace(r.Header.Get(CSRFHeader))
	if header == "" {
		e.log.Warn("csrf.missing_token", e.requestDetails(r, requestID))
		return e.Reject(r, requestID, http.StatusForbidden, CodeMissingCSRFToken, "Missing CSRF token.")
	}

	cookie := strings.TrimSpace(reqctx.Cookies(r)[CSRFCookieName])
	if cookie == "" {
		e.log.Warn("csrf.missing_cookie", e.requestDetails(r, requestID))
		return e.Reject(r, requestID, http.StatusForbidden, CodeMissingCSRFCookie, "Missing CSRF cookie.")
	}

	if !TokensEqual(header, cookie) {
		e.log.Warn("csrf.token_mismatch", e.requestDetails(r, requestID))
		return e.Reject(r, requestID, http.StatusForbidden, CodeInvalidCSRFToken, "Invalid CSRF token.")
	}
	return nil
}

// APIHeaders は API レスポンス共通ヘッダーを返します。
// Origin が許可されている場合のみ、その Origin をそのまま返す CORS ヘッダーを付けます（* は使わない）。
func (e *Enforcer) APIHeaders(r *http.Request, requestID string) http.Header {
	h := http.Header{}
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	if requestID != "" {
		h.Set(reqctx.HeaderRequestID, requestID)
	}

	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin != "" && e.policy.IsOriginAllowed(origin) {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Expose-Headers", exposeHeaders)
		h.Set("Vary", "Origin")
	}
	return h
}

// Preflight は OPTIONS リクエストを判定します。
// 許可されない Origin なら 403 の Rejection を、許可されるなら 204 用のヘッダーを返します。
func (e *Enforcer) Preflight(r *http.Request, requestID string) (*Rejection, http.Header) {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if !e.policy.IsOriginAllowed(origin) {
		e.log.Warn("csrf.preflight_rejected", e.requestDetails(r, requestID))
		return e.Reject(r, requestID, http.StatusForbidden, CodeOriginNotAllowed, "Request origin is not allowed."), nil
	}
	return nil, e.APIHeaders(r, requestID)
}

// Reject は API 共通ヘッダー付きの Rejection を作ります。
func (e *Enforcer) Reject(r *http.Request, requestID string, status int, code, message string) *Rejection {
	return &Rejection{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Header:    e.APIHeaders(r, requestID),
	}
}

func (e *Enforcer) requestDetails(r *http.Request, requestID string) map[string]any {
	path := ""
	if r.URL != nil {
		path = r.URL.Path
	}
	return map[string]any{
		"requestId": requestID,
		"method":    r.Method,
		"path":      path,
		"origin":    r.Header.Get("Origin"),
		"ip":        reqctx.ClientIP(r),
	}
}
