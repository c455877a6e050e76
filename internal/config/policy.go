package config

import (
	"net/url"
	"os"
	"strings"
)

// 環境変数名
const (
	EnvAllowedOrigins       = "ALLOWED_ORIGINS"
	EnvPublicSiteURL        = "PUBLIC_SITE_URL"
	EnvAdminEmails          = "ADMIN_EMAILS"
	EnvPaymentAllowedHosts  = "PAYMENT_ALLOWED_HOSTS"
	EnvIPNSignatureRequired = "IPN_SIGNATURE_REQUIRED"
	EnvAppEnv               = "APP_ENV"
	EnvGinMode              = "GIN_MODE"
)

var (
	devFallbackOrigins  = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	defaultPaymentHosts = []string{"pay.pesapal.com", "cybqa.pesapal.com"}
)

// Resolver はセキュリティポリシーを環境変数から解決します。
// 値はキャッシュせず、呼び出しのたびに読み直します。
type Resolver struct {
	lookup func(string) string
}

// NewResolver は os.Getenv を参照する Resolver を作成します。
func NewResolver() *Resolver {
	return &Resolver{lookup: os.Getenv}
}

// NewResolverFunc は任意の参照関数を使う Resolver を作成します（テスト用）。
func NewResolverFunc(lookup func(string) string) *Resolver {
	if lookup == nil {
		lookup = os.Getenv
	}
	return &Resolver{lookup: lookup}
}

func (r *Resolver) get(key string) string {
	if r == nil || r.lookup == nil {
		return strings.TrimSpace(os.Getenv(key))
	}
	return strings.TrimSpace(r.lookup(key))
}

// IsProduction は本番モードかどうかを返します。
// APP_ENV=production または GIN_MODE=release のとき本番扱いです。
func (r *Resolver) IsProduction() bool {
	if strings.EqualFold(r.get(EnvAppEnv), "production") {
		return true
	}
	return strings.EqualFold(r.get(EnvGinMode), "release")
}

// AllowedOrigins は許可オリジンの集合（小文字）を返します。
// 明示リストと公開サイトURLのどちらも空で、かつ本番でない場合のみ localhost を補います。
// 本番で何も設定されていなければ空集合を返し、すべて拒否します。
func (r *Resolver) AllowedOrigins() map[string]struct{} {
	origins := make(map[string]struct{})
	for _, entry := range splitList(r.get(EnvAllowedOrigins)) {
		origins[strings.ToLower(entry)] = struct{}{}
	}
	if site := canonicalOrigin(r.get(EnvPublicSiteURL)); site != "" {
		origins[site] = struct{}{}
	}

	if len(origins) == 0 && !r.IsProduction() {
		for _, o := range devFallbackOrigins {
			origins[o] = struct{}{}
		}
	}
	return origins
}

// IsOriginAllowed は origin が許可オリジンに含まれるかを返します（大文字小文字は区別しない）。
func (r *Resolver) IsOriginAllowed(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return false
	}
	_, ok := r.AllowedOrigins()[strings.ToLower(origin)]
	return ok
}

// IsAdminEmail は email が管理者リストに含まれるかを返します。
func (r *Resolver) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, admin := range splitList(r.get(EnvAdminEmails)) {
		if strings.ToLower(admin) == email {
			return true
		}
	}
	return false
}

// IsIPNSignatureRequired は IPN の署名検証が必須かどうかを返します。
// "true"/"false" の明示指定が優先され、未指定なら本番のみ必須です。
func (r *Resolver) IsIPNSignatureRequired() bool {
	switch strings.ToLower(r.get(EnvIPNSignatureRequired)) {
	case "true":
		return true
	case "false":
		return false
	}
	return r.IsProduction()
}

// OutboundAllowedHosts は外部呼び出しを許可するホスト名の集合を返します。
// 未設定の場合は決済プロバイダーの既知ホストを返します。
func (r *Resolver) OutboundAllowedHosts() map[string]struct{} {
	hosts := make(map[string]struct{})
	for _, h := range splitList(r.get(EnvPaymentAllowedHosts)) {
		hosts[strings.ToLower(h)] = struct{}{}
	}
	if len(hosts) == 0 {
		for _, h := range defaultPaymentHosts {
			hosts[h] = struct{}{}
		}
	}
	return hosts
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// canonicalOrigin は URL を scheme://host[:port] に縮約します。不正な URL は空文字を返します。
func canonicalOrigin(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return ""
	}
	host := u.Host
	// 既定ポートはブラウザの Origin ヘッダーに現れないため落とす
	if (u.Scheme == "https" && u.Port() == "443") || (u.Scheme == "http" && u.Port() == "80") {
		host = u.Hostname()
	}
	return strings.ToLower(u.Scheme + "://" + host)
}
