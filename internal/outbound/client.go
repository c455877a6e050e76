package outbound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yourusername/eve-on-safari/internal/config"
	"github.com/yourusername/eve-on-safari/internal/seclog"
)

const defaultTimeout = 10 * time.Second

// Doer は HTTP リクエストを実行するものです。*http.Client が満たします。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HostsFunc は呼び出しごとに許可ホストを返します。
type HostsFunc func() map[string]struct{}

// Client は宛先を検証してから送信する HTTP クライアントです。
// リトライは行いません（必要なら呼び出し側で行う）。
type Client struct {
	policy *config.Resolver
	hosts  HostsFunc
	doer   Doer
	log    *seclog.Logger
}

// NewClient は Client を作成します。
// hosts が nil の場合は policy.OutboundAllowedHosts を使います。
// doer が nil の場合はリダイレクト先も検証する *http.Client を使います。
func NewClient(policy *config.Resolver, hosts HostsFunc, doer Doer, logger *seclog.Logger) *Client {
	if policy == nil {
		policy = config.NewResolver()
	}
	if hosts == nil {
		hosts = policy.OutboundAllowedHosts
	}
	if logger == nil {
		logger = seclog.Nop()
	}
	c := &Client{policy: policy, hosts: hosts, log: logger}
	if doer == nil {
		doer = &http.Client{
			Timeout: defaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("stopped after 5 redirects")
				}
				return c.Check(req.URL.String(), "Redirect target")
			},
		}
	}
	c.doer = doer
	return c
}

// Check は現在のポリシーで宛先を検証します。
func (c *Client) Check(rawURL, label string) error {
	_, err := AssertSafeURL(rawURL, c.hosts(), label, c.policy.IsProduction())
	return err
}

// Do は宛先を検証したうえで req を送信します。
func (c *Client) Do(ctx context.Context, req *http.Request, label string) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("%s: request is nil", label)
	}
	if err := c.Check(req.URL.String(), label); err != nil {
		c.log.Error("outbound.blocked", map[string]any{
			"label":  label,
			"host":   req.URL.Hostname(),
			"detail": err.Error(),
		})
		return nil, err
	}
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	return c.doer.Do(req)
}

// NewRequest は宛先を検証してから *http.Request を作ります。
func (c *Client) NewRequest(ctx context.Context, method, rawURL, label string, body io.Reader) (*http.Request, error) {
	if err := c.Check(rawURL, label); err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, method, rawURL, body)
}
