package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"
)

// CSRFCookieMaxAge は CSRF Cookie の有効期間です。
const CSRFCookieMaxAge = 24 * time.Hour

// TokensEqual は長さを先に確認したうえで定数時間比較を行います。
func TokensEqual(a, b string) bool {
	left, right := []byte(a), []byte(b)
	if len(left) != len(right) {
		// 長さ不一致でも比較 1 回分の時間は使う
		subtle.ConstantTimeCompare(left, left)
		return false
	}
	return subtle.ConstantTimeCompare(left, right) == 1
}

// NewCSRFToken は 32 バイトの乱数を16進文字列で返します。
func NewCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// EnsureCSRFCookie は current が空のときだけ新しいトークンを発行して Cookie に設定します。
// スクリプトからヘッダーへ転記できるよう HttpOnly にはしません。
// 戻り値は有効なトークン値です。
func EnsureCSRFCookie(w http.ResponseWriter, current string, production bool) (string, error) {
	if current != "" {
		return current, nil
	}
	token, err := NewCSRFToken()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(CSRFCookieMaxAge.Seconds()),
		Secure:   production,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}
