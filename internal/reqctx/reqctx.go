// Package reqctx はリクエストからログ相関用の情報（リクエストID・クライアントIP）と
// Cookie を取り出すユーティリティを提供します。ここで得た値を認可判断に使ってはいけません。
package reqctx

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID    = "X-Request-Id"
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
	UnknownClientIP    = "unknown"
	contextIdentityKey = "reqctx.identity"
)

// Identity はリクエスト単位の観測用情報です。永続化しません。
type Identity struct {
	RequestID string
	ClientIP  string
}

// RequestID は X-Request-Id ヘッダーがあればその値（前後の空白除去）を、なければ新しいIDを返します。
func RequestID(r *http.Request) string {
	if r != nil {
		if id := strings.TrimSpace(r.Header.Get(HeaderRequestID)); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// ClientIP は X-Forwarded-For の先頭、X-Real-IP、"unknown" の順で返します。
func ClientIP(r *http.Request) string {
	if r == nil {
		return UnknownClientIP
	}
	if forwarded := r.Header.Get(HeaderForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get(HeaderRealIP)); realIP != "" {
		return realIP
	}
	return UnknownClientIP
}

// FromRequest は RequestID と ClientIP をまとめて返します。
func FromRequest(r *http.Request) Identity {
	return Identity{
		RequestID: RequestID(r),
		ClientIP:  ClientIP(r),
	}
}

// ParseCookies は Cookie ヘッダーを name→value に分解します。
// 重複した名前は後勝ちで、URLデコードに失敗した値は生のまま返します。
func ParseCookies(header string) map[string]string {
	cookies := make(map[string]string)
	if header == "" {
		return cookies
	}
	for _, pair := range strings.Split(header, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		cookies[name] = value
	}
	return cookies
}

// Cookies はリクエストの全 Cookie ヘッダーを解析します。
func Cookies(r *http.Request) map[string]string {
	if r == nil {
		return map[string]string{}
	}
	return ParseCookies(strings.Join(r.Header.Values("Cookie"), "; "))
}

// Middleware はリクエストごとに Identity を決めて gin のコンテキストに保存し、
// レスポンスヘッダーにリクエストIDを付与します。
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := FromRequest(c.Request)
		c.Set(contextIdentityKey, id)
		c.Header(HeaderRequestID, id.RequestID)
		c.Next()
	}
}

// FromGin は Middleware が保存した Identity を返します。未設定ならその場で生成して保存します。
func FromGin(c *gin.Context) Identity {
	if v, ok := c.Get(contextIdentityKey); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	id := FromRequest(c.Request)
	c.Set(contextIdentityKey, id)
	return id
}
