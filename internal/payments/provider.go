package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/yourusername/eve-on-safari/internal/outbound"
)

const (
	providerLabel            = "Payment API URL"
	maxProviderResponseBytes = 1 << 20
)

// ErrProviderRejected はプロバイダーが要求を受け付けなかったことを表します。
var ErrProviderRejected = errors.New("payment provider rejected the request")

// Provider は決済プロバイダーの REST API クライアントです。
// 通信はすべて outbound.Client を経由します。
type Provider struct {
	baseURL string
	apiKey  string
	client  *outbound.Client
}

// NewProvider は Provider を作成します。
func NewProvider(baseURL, apiKey string, client *outbound.Client) *Provider {
	return &Provider{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

type submitOrderRequest struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         float64        `json:"amount"`
	Description    string         `json:"description"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id,omitempty"`
	BillingAddress billingAddress `json:"billing_address"`
}

type billingAddress struct {
	EmailAddress string `json:"email_address,omitempty"`
}

type submitOrderResponse struct {
	OrderTrackingID   string `json:"order_tracking_id"`
	MerchantReference string `json:"merchant_reference"`
	RedirectURL       string `json:"redirect_url"`
	Status            string `json:"status"`
}

type transactionStatusResponse struct {
	PaymentMethod     string  `json:"payment_method"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	MerchantReference string  `json:"merchant_reference"`
	StatusCode        int     `json:"status_code"`
}

// SubmitOrder は注文を送信し、支払いページの URL を受け取ります。
func (p *Provider) SubmitOrder(ctx context.Context, order Order) (*OrderReceipt, error) {
	body, err := json.Marshal(submitOrderRequest{
		ID:             order.MerchantReference,
		Currency:       order.Currency,
		Amount:         order.Amount,
		Description:    order.Description,
		CallbackURL:    order.CallbackURL,
		NotificationID: order.NotificationID,
		BillingAddress: billingAddress{EmailAddress: order.Email},
	})
	if err != nil {
		return nil, err
	}

	var out submitOrderResponse
	if err := p.call(ctx, http.MethodPost, "/api/Transactions/SubmitOrderRequest", body, &out); err != nil {
		return nil, err
	}
	if out.OrderTrackingID == "" || out.RedirectURL == "" {
		return nil, ErrProviderRejected
	}
	return &OrderReceipt{
		TrackingID:        out.OrderTrackingID,
		MerchantReference: out.MerchantReference,
		RedirectURL:       out.RedirectURL,
	}, nil
}

// TransactionStatus は取引の最新状態を問い合わせます。
func (p *Provider) TransactionStatus(ctx context.Context, trackingID string) (*StatusReport, error) {
	path := "/api/Transactions/GetTransactionStatus?orderTrackingId=" + url.QueryEscape(trackingID)
	var out transactionStatusResponse
	if err := p.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &StatusReport{
		Status:            statusFromCode(out.StatusCode),
		MerchantReference: out.MerchantReference,
		Amount:            out.Amount,
		Currency:          out.Currency,
		PaymentMethod:     out.PaymentMethod,
	}, nil
}

func statusFromCode(code int) Status {
	switch code {
	case 1:
		return StatusCompleted
	case 2:
		return StatusFailed
	case 3:
		return StatusReversed
	default:
		return StatusInvalid
	}
}

func (p *Provider) call(ctx context.Context, method, path string, body []byte, out any) error {
	if p.baseURL == "" {
		return fmt.Errorf("payment provider is not configured")
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := p.client.NewRequest(ctx, method, p.baseURL+path, providerLabel, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(ctx, req, providerLabel)
	if err != nil {
		return fmt.Errorf("payment provider request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseBytes))
	if err != nil {
		return fmt.Errorf("payment provider response read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrProviderRejected, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("payment provider response is not valid JSON: %w", err)
	}
	return nil
}
