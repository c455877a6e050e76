package security

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/eve-on-safari/internal/reqctx"
)

// Middleware は API ルート向けのミドルウェアを返します。
// 共通ヘッダー付与 → OPTIONS のプリフライト応答 → 同一オリジン検証 → CSRF 検証 の順に処理します。
func (e *Enforcer) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := reqctx.FromGin(c)
		copyHeader(c.Writer.Header(), e.APIHeaders(c.Request, id.RequestID))

		if c.Request.Method == http.MethodOptions {
			rej, header := e.Preflight(c.Request, id.RequestID)
			if rej != nil {
				Abort(c, rej)
				return
			}
			copyHeader(c.Writer.Header(), header)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		if rej := e.EnforceSameOrigin(c.Request, id.RequestID); rej != nil {
			Abort(c, rej)
			return
		}
		if rej := e.EnforceCSRFToken(c.Request, id.RequestID); rej != nil {
			Abort(c, rej)
			return
		}
		c.Next()
	}
}

// HeadersOnly は CSRF 検証を行わず共通ヘッダーだけを付けるミドルウェアです。
// Origin を送らないサーバー間通信（決済 IPN など）に使います。
func (e *Enforcer) HeadersOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := reqctx.FromGin(c)
		copyHeader(c.Writer.Header(), e.APIHeaders(c.Request, id.RequestID))
		c.Next()
	}
}

// CSRFCookie は安全なメソッドのレスポンスで CSRF Cookie を発行しておくミドルウェアです。
func (e *Enforcer) CSRFCookie() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsSafeMethod(c.Request.Method) {
			if _, err := e.EnsureCookie(c); err != nil {
				id := reqctx.FromGin(c)
				e.log.Error("csrf.cookie_issue_failed", map[string]any{
					"requestId": id.RequestID,
					"error":     err.Error(),
				})
			}
		}
		c.Next()
	}
}

const contextCSRFKey = "security.csrf_token"

// EnsureCookie は現在の Cookie 値を読み、なければ新しく発行します。
// 同じリクエスト内で二重に発行しないよう、発行済みの値はコンテキストに保持します。
func (e *Enforcer) EnsureCookie(c *gin.Context) (string, error) {
	if v, ok := c.Get(contextCSRFKey); ok {
		if token, ok := v.(string); ok && token != "" {
			return token, nil
		}
	}
	current := reqctx.Cookies(c.Request)[CSRFCookieName]
	token, err := EnsureCSRFCookie(c.Writer, current, e.policy.IsProduction())
	if err != nil {
		return "", err
	}
	c.Set(contextCSRFKey, token)
	return token, nil
}
