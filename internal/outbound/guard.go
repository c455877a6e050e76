// Package outbound はサーバーから外部へ送るリクエストの宛先を検証します（SSRF 対策）。
// 宛先の認可だけを行い、通信そのものは Client が注入された Doer に任せます。
package outbound

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// Error は宛先が認可されなかったことを表します。
// 設定/実装上の不備として扱い、メッセージをそのままクライアントへ返してはいけません。
type Error struct {
	Label  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s", e.Label, e.Reason)
}

const (
	reasonInvalidURL   = "is not a valid URL."
	reasonHTTPSOnly    = "must use HTTPS in production."
	reasonPrivate      = "points to a private or local network address."
	reasonNotAllowlist = "host is not in the outbound allowlist."
)

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// AssertSafeURL は rawURL が外部呼び出し先として安全かを検証し、パース済み URL を返します。
// 検査順: パース → 本番での HTTPS 強制 → ローカル名/プライベートIP → 許可リスト。
// プライベートアドレスは許可リストに載っていても拒否します。
func AssertSafeURL(rawURL string, allowedHosts map[string]struct{}, label string, production bool) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &Error{Label: label, Reason: reasonInvalidURL}
	}
	host := normalizeHost(u.Hostname())
	if _, numeric, err := parseIPv4Loose(host); numeric && err != nil {
		return nil, &Error{Label: label, Reason: reasonInvalidURL}
	}

	if production && u.Scheme != "https" {
		return nil, &Error{Label: label, Reason: reasonHTTPSOnly}
	}

	if IsPrivateHost(host) {
		return nil, &Error{Label: label, Reason: reasonPrivate}
	}

	if len(allowedHosts) > 0 && !hostAllowed(allowedHosts, host) {
		return nil, &Error{Label: label, Reason: reasonNotAllowlist}
	}
	return u, nil
}

// hostAllowed は許可リストのキーを正規化してから照合します（大文字や末尾ドット入りの設定も許容）。
func hostAllowed(allowedHosts map[string]struct{}, host string) bool {
	if _, ok := allowedHosts[host]; ok {
		return true
	}
	for candidate := range allowedHosts {
		if normalizeHost(candidate) == host {
			return true
		}
	}
	return false
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}

// IsPrivateHost はローカル名、またはプライベート/予約済みレンジの IP リテラルなら true を返します。
func IsPrivateHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(strings.Trim(host, "[]")), ".")
	if host == "" {
		return true
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return true
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		loose, numeric, looseErr := parseIPv4Loose(host)
		if !numeric {
			return false
		}
		if looseErr != nil {
			// 数値ホストなのに解釈できないものは安全側に倒す
			return true
		}
		addr = loose
	}
	addr = addr.Unmap()
	for _, prefix := range privatePrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

var errInvalidIPv4 = errors.New("invalid IPv4 host")

// parseIPv4Loose はブラウザや OS のリゾルバーが受け付ける IPv4 表記を解釈します。
// 2130706433、127.1、0x7f.0.0.1、0177.0.0.1 のような 1〜4 個の 10/16/8 進ラベルが対象です。
// 最後のラベルが数値でなければ numeric=false を返します。
func parseIPv4Loose(host string) (addr netip.Addr, numeric bool, err error) {
	parts := strings.Split(host, ".")
	if !isNumericLabel(parts[len(parts)-1]) {
		return netip.Addr{}, false, nil
	}
	if len(parts) > 4 {
		return netip.Addr{}, true, errInvalidIPv4
	}

	var value uint64
	last := len(parts) - 1
	for i, part := range parts {
		n, err := parseIPv4Part(part)
		if err != nil {
			return netip.Addr{}, true, errInvalidIPv4
		}
		if i < last {
			if n > 255 {
				return netip.Addr{}, true, errInvalidIPv4
			}
			value |= n << (8 * (3 - i))
			continue
		}
		// 最後のラベルは残りのバイトをすべて埋める
		if n >= 1<<(8*(4-last)) {
			return netip.Addr{}, true, errInvalidIPv4
		}
		value |= n
	}
	return netip.AddrFrom4([4]byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}), true, nil
}

func isNumericLabel(label string) bool {
	if label == "" {
		return false
	}
	if rest, ok := cutHexPrefix(label); ok {
		for _, r := range rest {
			if !strings.ContainsRune("0123456789abcdef", r) {
				return false
			}
		}
		return true
	}
	for _, r := range label {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseIPv4Part(part string) (uint64, error) {
	if part == "" {
		return 0, errInvalidIPv4
	}
	if rest, ok := cutHexPrefix(part); ok {
		if rest == "" {
			return 0, nil
		}
		return strconv.ParseUint(rest, 16, 64)
	}
	if len(part) > 1 && part[0] == '0' {
		return strconv.ParseUint(part[1:], 8, 64)
	}
	return strconv.ParseUint(part, 10, 64)
}

func cutHexPrefix(s string) (string, bool) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:], true
	}
	return "", false
}

// HostSet は可変長のホスト名から許可リストを作ります。空文字は無視します。
func HostSet(hosts ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		if h = normalizeHost(h); h != "" {
			set[h] = struct{}{}
		}
	}
	return set
}
