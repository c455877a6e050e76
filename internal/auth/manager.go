// Package auth は Bearer トークンによる認証と、管理者リストによる認可を提供します。
// セッション発行やパスワード管理は行わず、トークンの検証は外部の Verifier に委ねます。
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/yourusername/eve-on-safari/internal/security"
)

// Principal は検証済みトークンから得られた利用者情報です。
type Principal struct {
	ID    string         `json:"id"`
	Email string         `json:"email,omitempty"`
	Raw   map[string]any `json:"-"`
}

// Session は検証済みの利用者と生のトークンの組です。
// 同一オリジンの管理 API にトークンを転送する場合に使います。
type Session struct {
	Principal *Principal
	Token     string
}

// Verifier は Bearer トークンを検証する外部IDプロバイダーです。
// 失敗時は error を返し、その内容は理由としてログにのみ記録されます。
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// VerifierFunc は関数を Verifier として使うためのアダプターです。
type VerifierFunc func(ctx context.Context, token string) (*Principal, error)

// Verify は f(ctx, token) を呼びます。
func (f VerifierFunc) Verify(ctx context.Context, token string) (*Principal, error) {
	return f(ctx, token)
}

// ErrNoPrincipal は Verifier がエラーなしで利用者を返さなかったことを表します。
var ErrNoPrincipal = errors.New("verifier returned no principal")

// Manager は認証処理をまとめた構造体です。状態は持ちません。
type Manager struct {
	verifier Verifier
	enforcer *security.Enforcer
}

// NewManager は認証マネージャーを作成します。
func NewManager(verifier Verifier, enforcer *security.Enforcer) *Manager {
	if enforcer == nil {
		enforcer = security.NewEnforcer(nil, nil)
	}
	return &Manager{verifier: verifier, enforcer: enforcer}
}

// BearerToken は Authorization ヘッダーからトークンを取り出します（スキーム名は大文字小文字を区別しない）。
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// RequireAuthenticatedUser は Bearer トークンを検証し、利用者を返します。
// Verifier の通信失敗も「無効なトークン」と同じ 401 にします（プロバイダー障害と不正トークンを区別させない）。
func (m *Manager) RequireAuthenticatedUser(r *http.Request, requestID string) (*Session, *security.Rejection) {
	log := m.enforcer.Logger()

	token, ok := BearerToken(r.Header.Get("Authorization"))
	if !ok {
		log.Warn("auth.missing_bearer", map[string]any{
			"requestId": requestID,
			"path":      r.URL.Path,
		})
		return nil, m.enforcer.Reject(r, requestID, http.StatusUnauthorized, security.CodeAuthRequired, "Authentication required.")
	}

	principal, err := m.verify(r.Context(), token)
	if err != nil {
		log.Warn("auth.invalid_token", map[string]any{
			"requestId": requestID,
			"path":      r.URL.Path,
			"reason":    err.Error(),
		})
		return nil, m.enforcer.Reject(r, requestID, http.StatusUnauthorized, security.CodeInvalidAuthToken, "Invalid or expired authentication token.")
	}

	return &Session{Principal: principal, Token: token}, nil
}

// RequireAdminUser は認証に加え、利用者のメールアドレスが管理者リストに含まれるかを確認します。
func (m *Manager) RequireAdminUser(r *http.Request, requestID string) (*Session, *security.Rejection) {
	session, rej := m.RequireAuthenticatedUser(r, requestID)
	if rej != nil {
		return nil, rej
	}

	email := strings.ToLower(strings.TrimSpace(session.Principal.Email))
	if !m.enforcer.Policy().IsAdminEmail(email) {
		m.enforcer.Logger().Warn("auth.admin_denied", map[string]any{
			"requestId": requestID,
			"userId":    session.Principal.ID,
			"email":     email,
		})
		return nil, m.enforcer.Reject(r, requestID, http.StatusForbidden, security.CodeAdminRequired, "Admin access required.")
	}
	return session, nil
}

// IsEmailOwnedByUser は申告されたメールアドレスが検証済み利用者のものかを返します。
func IsEmailOwnedByUser(email string, principal *Principal) bool {
	if principal == nil {
		return false
	}
	claimed := strings.ToLower(strings.TrimSpace(email))
	verified := strings.ToLower(strings.TrimSpace(principal.Email))
	return claimed != "" && claimed == verified
}

func (m *Manager) verify(ctx context.Context, token string) (principal *Principal, err error) {
	if m.verifier == nil {
		return nil, errors.New("no verifier configured")
	}
	defer func() {
		if rec := recover(); rec != nil {
			principal, err = nil, fmt.Errorf("verifier panicked: %v", rec)
		}
	}()

	principal, err = m.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if principal == nil || principal.ID == "" {
		return nil, ErrNoPrincipal
	}
	return principal, nil
}
