package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/yourusername/eve-on-safari/internal/outbound"
)

const maxIdentityResponseBytes = 1 << 20

// HTTPVerifier は IDプロバイダーのユーザー取得 API にトークンを渡して検証します。
// 宛先は outbound.Client の検証を通ります。
type HTTPVerifier struct {
	baseURL string
	apiKey  string
	client  *outbound.Client
}

// NewHTTPVerifier は HTTPVerifier を作成します。
func NewHTTPVerifier(baseURL, apiKey string, client *outbound.Client) *HTTPVerifier {
	return &HTTPVerifier{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// IdentityHost は baseURL のホスト名を返します。outbound の許可リストに使います。
func IdentityHost(baseURL string) string {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

type identityUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Verify は GET {baseURL}/auth/v1/user を呼び、利用者を返します。
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	if v.baseURL == "" {
		return nil, fmt.Errorf("identity provider is not configured")
	}
	req, err := v.client.NewRequest(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", "Identity URL", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if v.apiKey != "" {
		req.Header.Set("apikey", v.apiKey)
	}

	resp, err := v.client.Do(ctx, req, "Identity URL")
	if err != nil {
		return nil, fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIdentityResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("identity response read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var user identityUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("identity response is not valid JSON: %w", err)
	}
	if user.ID == "" {
		return nil, ErrNoPrincipal
	}

	var raw map[string]any
	_ = json.Unmarshal(body, &raw)
	return &Principal{
		ID:    user.ID,
		Email: user.Email,
		Raw:   raw,
	}, nil
}
