// Package ratelimit はレート制限の判定結果をレスポンスヘッダーに載せる契約を定義します。
// カウンタの保存先は持たず、呼び出し側が Source として判定結果を渡します。
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Decision は呼び出し側が算出した上限・残数・リセット時刻です。
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Source はキー（通常はクライアントIP）ごとの判定結果を返します。
type Source interface {
	Decide(ctx context.Context, key string) (Decision, error)
}

// SourceFunc は関数を Source として扱うためのアダプターです。
type SourceFunc func(ctx context.Context, key string) (Decision, error)

// Decide は f を呼び出します。
func (f SourceFunc) Decide(ctx context.Context, key string) (Decision, error) {
	return f(ctx, key)
}

var now = time.Now

// SetHeaders は判定結果を X-RateLimit-* ヘッダーとして書き込みます。
// 残数が 0 のときは Retry-After（秒）も付けます。
func SetHeaders(h http.Header, d Decision) {
	remaining := d.Remaining
	if remaining < 0 {
		remaining = 0
	}
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(remaining))
	if d.ResetAt.IsZero() {
		return
	}
	h.Set(HeaderReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
	if remaining == 0 {
		wait := int(math.Ceil(d.ResetAt.Sub(now()).Seconds()))
		if wait < 1 {
			wait = 1
		}
		h.Set(HeaderRetryAfter, strconv.Itoa(wait))
	}
}
