package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader は IPN 署名を運ぶヘッダー名です。
const SignatureHeader = "X-Pesapal-Signature"

const signaturePrefix = "sha256="

var (
	ErrMissingSignature = errors.New("missing IPN signature")
	ErrInvalidSignature = errors.New("invalid IPN signature")
	ErrNoSigningSecret  = errors.New("IPN signing secret is not configured")
)

// Sign は body の HMAC-SHA256 署名を "sha256=<hex>" 形式で返します。
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifyIPNSignature は "sha256=<hex>" 形式の署名を定数時間で比較します。
func VerifyIPNSignature(secret string, body []byte, header string) error {
	if secret == "" {
		return ErrNoSigningSecret
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	if !strings.HasPrefix(strings.ToLower(header), signaturePrefix) {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(header[len(signaturePrefix):])
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}
