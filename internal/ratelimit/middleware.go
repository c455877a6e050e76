package ratelimit

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/eve-on-safari/internal/reqctx"
	"github.com/yourusername/eve-on-safari/internal/security"
)

// Headers は Source の判定結果をヘッダーに反映し、許可されない場合は 429 を返すミドルウェアです。
// source が nil なら何もしません。Source の失敗時は制限せずに通します。
func Headers(source Source, enforcer *security.Enforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if source == nil {
			c.Next()
			return
		}

		id := reqctx.FromGin(c)
		d, err := source.Decide(c.Request.Context(), id.ClientIP)
		if err != nil {
			enforcer.Logger().Warn("ratelimit.source_failed", map[string]any{
				"requestId": id.RequestID,
				"path":      c.Request.URL.Path,
				"error":     err.Error(),
			})
			c.Next()
			return
		}

		SetHeaders(c.Writer.Header(), d)
		if !d.Allowed {
			enforcer.Logger().Warn("ratelimit.exceeded", map[string]any{
				"requestId": id.RequestID,
				"path":      c.Request.URL.Path,
				"ip":        id.ClientIP,
				"limit":     d.Limit,
			})
			security.Abort(c, enforcer.Reject(c.Request, id.RequestID,
				http.StatusTooManyRequests, security.CodeRateLimited, "Too many requests. Please try again later."))
			return
		}
		c.Next()
	}
}
