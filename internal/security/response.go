// Package security はリクエスト境界での同一オリジン検証・CSRF 検証と、
// API レスポンス共通ヘッダー（CORS を含む）を提供します。
//
// 判定ロジックは *http.Request だけを入力にしており、gin への依存は
// middleware.go のアダプターに閉じ込めています。
package security

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// エラーコード（クライアントが分岐に使う安定した値）
const (
	CodeOriginNotAllowed  = "origin_not_allowed"
	CodeMissingCSRFToken  = "missing_csrf_token"
	CodeMissingCSRFCookie = "missing_csrf_cookie"
	CodeInvalidCSRFToken  = "invalid_csrf_token"
	CodeAuthRequired      = "auth_required"
	CodeInvalidAuthToken  = "invalid_auth_token"
	CodeAdminRequired     = "admin_required"
	CodeInvalidInput      = "invalid_input"
	CodeInternalError     = "internal_error"
	CodeUpstreamError     = "upstream_error"
	CodeRateLimited       = "rate_limited"
	CodeNotFound          = "not_found"
	CodeInvalidSignature  = "invalid_signature"
	CodeEmailMismatch     = "email_mismatch"
)

// ErrorBody はエラー時の JSON ボディです。
type ErrorBody struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
	RequestID string `json:"requestId"`
}

// Rejection はポリシー違反によりリクエストを拒否する判定結果です。
// 判定関数は error ではなくこの値を返し、ハンドラーは早期 return で合成します。
type Rejection struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	Header    http.Header
}

// Body は JSON ボディを返します。
func (r *Rejection) Body() ErrorBody {
	return ErrorBody{
		OK:        false,
		Error:     r.Message,
		ErrorCode: r.Code,
		RequestID: r.RequestID,
	}
}

// Write は net/http の ResponseWriter に拒否レスポンスを書き出します。
func (r *Rejection) Write(w http.ResponseWriter) {
	copyHeader(w.Header(), r.Header)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(r.Status)
	_ = json.NewEncoder(w).Encode(r.Body())
}

// Abort は gin のコンテキストを中断して拒否レスポンスを返します。
func Abort(c *gin.Context, r *Rejection) {
	copyHeader(c.Writer.Header(), r.Header)
	c.AbortWithStatusJSON(r.Status, r.Body())
}

// Fail はポリシー違反以外（入力エラー・内部エラー）の JSON エラーを返します。
// 内部の例外メッセージをそのまま渡してはいけません。
func Fail(c *gin.Context, status int, code, message, requestID string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		OK:        false,
		Error:     message,
		ErrorCode: code,
		RequestID: requestID,
	})
}

func copyHeader(dst, src http.Header) {
	for k, values := range src {
		dst.Del(k)
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
