package seclog

import (
	"encoding"
	"encoding/json"
	"reflect"
	"strings"
)

const redactedMarker = "[REDACTED]"

var sensitiveKeyParts = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"cookie",
	"email",
	"phone",
	"set-cookie",
	"message",
	"reason",
}

// IsSensitiveKey はキー名（小文字化後）に機微な部分文字列が含まれるかを返します。
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// Redact は値を再帰的にたどり、機微なキーの値をマスクしたコピーを返します。
// 構造体は JSON のフィールド名をキーとする map に変換してから判定します。
// 元の値は変更しません。
func Redact(v any) any {
	return redactValue(reflect.ValueOf(v), 0)
}

// maxRedactDepth を超える入れ子は循環参照とみなして打ち切ります。
const maxRedactDepth = 32

func redactValue(v reflect.Value, depth int) any {
	if !v.IsValid() {
		return nil
	}
	if depth > maxRedactDepth {
		return redactedMarker
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Pointer && marshalsItself(v) {
			return v.Interface()
		}
		return redactValue(v.Elem(), depth+1)
	case reflect.Struct:
		if marshalsItself(v) {
			return v.Interface()
		}
		return redactStruct(v, depth)
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return v.Interface()
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			if IsSensitiveKey(key) {
				out[key] = maskValue(iter.Value())
				continue
			}
			out[key] = redactValue(iter.Value(), depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface()
		}
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = redactValue(v.Index(i), depth+1)
		}
		return out
	default:
		return v.Interface()
	}
}

var (
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	errorType         = reflect.TypeOf((*error)(nil)).Elem()
)

// marshalsItself は time.Time や error のように独自の表現を持つ値なら true を返します。
func marshalsItself(v reflect.Value) bool {
	t := v.Type()
	if t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) || t.Implements(errorType) {
		return true
	}
	if t.Kind() != reflect.Pointer {
		pt := reflect.PointerTo(t)
		return pt.Implements(jsonMarshalerType) || pt.Implements(textMarshalerType)
	}
	return false
}

// redactStruct は公開フィールドを json タグ名（なければフィールド名）の map に写します。
// json:"-" と omitempty のゼロ値は encoding/json と同じく出力しません。
func redactStruct(v reflect.Value, depth int) map[string]any {
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" && opts == "" {
			continue
		}
		fv := v.Field(i)
		if strings.Contains(opts, "omitempty") && fv.IsZero() {
			continue
		}

		if field.Anonymous && name == "" {
			for fv.Kind() == reflect.Pointer && !fv.IsNil() {
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct && !marshalsItself(fv) {
				for k, inner := range redactStruct(fv, depth+1) {
					if _, taken := out[k]; !taken {
						out[k] = inner
					}
				}
				continue
			}
		}

		if name == "" {
			name = field.Name
		}
		if IsSensitiveKey(name) || IsSensitiveKey(field.Name) {
			out[name] = maskValue(fv)
			continue
		}
		out[name] = redactValue(fv, depth+1)
	}
	return out
}

// maskValue は 4 文字を超える文字列なら先頭 2 文字だけを残し、それ以外は丸ごと伏せます。
func maskValue(v reflect.Value) string {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) && !v.IsNil() {
		v = v.Elem()
	}
	if v.IsValid() && v.Kind() == reflect.String {
		runes := []rune(v.String())
		if len(runes) > 4 {
			return string(runes[:2]) + "..." + redactedMarker
		}
	}
	return redactedMarker
}
