package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/yourusername/eve-on-safari/internal/reqctx"
	"github.com/yourusername/eve-on-safari/internal/security"
)

// ContextSessionKey は、ハンドラー間で検証済みセッションを共有するためのキーです。
const ContextSessionKey = "auth.session"

// RequireLogin は Bearer トークンを検証するミドルウェアを返します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := reqctx.FromGin(c)
		session, rej := m.RequireAuthenticatedUser(c.Request, id.RequestID)
		if rej != nil {
			security.Abort(c, rej)
			return
		}
		c.Set(ContextSessionKey, session)
		c.Next()
	}
}

// RequireAdmin は管理者のみ通すミドルウェアを返します。
func (m *Manager) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := reqctx.FromGin(c)
		session, rej := m.RequireAdminUser(c.Request, id.RequestID)
		if rej != nil {
			security.Abort(c, rej)
			return
		}
		c.Set(ContextSessionKey, session)
		c.Next()
	}
}

// SessionFrom は RequireLogin/RequireAdmin が保存したセッションを返します。
func SessionFrom(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(ContextSessionKey)
	if !ok {
		return nil, false
	}
	session, ok := v.(*Session)
	return session, ok && session != nil
}
