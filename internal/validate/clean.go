// Package validate は外部から受け取ったペイロードを検証・正規化し、
// 型付きのレコードに変換します。不正な入力は想定内の結果として Result で返し、panic しません。
package validate

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const maxEmailLength = 254

var (
	emailShape   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	slugPattern  = regexp.MustCompile(`^[a-z0-9-]+$`)
	integerText  = regexp.MustCompile(`^[+-]?\d+$`)
	emailChecker = validator.New()
)

// CleanText は文字列のみ受け付け、制御文字（C0 と DEL）を除去して前後の空白を落とし、
// maxLength 文字に切り詰めます。空になった場合は ok=false です。
func CleanText(value any, maxLength int) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if maxLength > 0 && utf8.RuneCountInString(s) > maxLength {
		s = string([]rune(s)[:maxLength])
	}
	return s, true
}

// CleanEmail は local@domain.tld 形式のメールアドレスを小文字で返します。
func CleanEmail(value any) (string, bool) {
	s, ok := CleanText(value, maxEmailLength)
	if !ok || !emailShape.MatchString(s) {
		return "", false
	}
	if err := emailChecker.Var(s, "email"); err != nil {
		return "", false
	}
	return strings.ToLower(s), true
}

// CleanSlug は英数字とハイフンのみからなるスラッグを小文字で返します。
func CleanSlug(value any, maxLength int) (string, bool) {
	if maxLength <= 0 {
		maxLength = 100
	}
	s, ok := CleanText(value, maxLength)
	if !ok {
		return "", false
	}
	s = strings.ToLower(s)
	if !slugPattern.MatchString(s) {
		return "", false
	}
	return s, true
}

// CleanInt は整数（数値または整数表記の文字列）を受け付け、範囲外は拒否します（丸めない）。
func CleanInt(value any, min, max int) (int, bool) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return 0, false
		}
		n = int64(v)
	case json.Number:
		parsed, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	case string:
		s := strings.TrimSpace(v)
		if !integerText.MatchString(s) {
			return 0, false
		}
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if n < int64(min) || n > int64(max) {
		return 0, false
	}
	return int(n), true
}

// CleanAmount は (0, 100000] の有限な金額を小数点以下 2 桁に丸めて返します。
func CleanAmount(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f > 100000 {
		return 0, false
	}
	rounded := math.Round(f*100) / 100
	if rounded <= 0 {
		return 0, false
	}
	return rounded, true
}

// CleanCurrency は 3 文字の通貨コードを大文字で返します。未指定なら "USD" です。
func CleanCurrency(value any) (string, bool) {
	if value == nil {
		return "USD", true
	}
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "USD", true
	}
	if len(s) != 3 {
		return "", false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "", false
		}
	}
	return strings.ToUpper(s), true
}

// SanitizeEmailHeaderValue はメールヘッダーへの注入を防ぐため CR/LF を除去します。
func SanitizeEmailHeaderValue(value string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "").Replace(value))
}

// NormalizeSourceForStorage は流入元を小文字化し、空白をハイフンに置き換えます。
func NormalizeSourceForStorage(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), "-")
}
