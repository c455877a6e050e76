package main

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/eve-on-safari/internal/auth"
	"github.com/yourusername/eve-on-safari/internal/config"
	"github.com/yourusername/eve-on-safari/internal/payments"
	"github.com/yourusername/eve-on-safari/internal/ratelimit"
	"github.com/yourusername/eve-on-safari/internal/reqctx"
	"github.com/yourusername/eve-on-safari/internal/security"
	"github.com/yourusername/eve-on-safari/internal/seclog"
)

type transactionStore interface {
	Get(ctx context.Context, trackingID string) (*payments.Transaction, error)
	Upsert(ctx context.Context, txn *payments.Transaction) error
}

type orderSubmitter interface {
	SubmitOrder(ctx context.Context, order payments.Order) (*payments.OrderReceipt, error)
}

type statusEnqueuer interface {
	EnqueueStatusCheck(ctx context.Context, trackingID string) (string, error)
}

// server はハンドラーが使う依存をまとめたものです。
type server struct {
	settings *config.Settings
	enforcer *security.Enforcer
	auth     *auth.Manager
	store    transactionStore
	orders   orderSubmitter
	queue    statusEnqueuer
	limits   ratelimit.Source // nil ならレート制限ヘッダーを付けない（制限はエッジ側）
	log      *seclog.Logger
}

// setupRoutes は API グループとセキュリティミドルウェアの配線を行います。
func setupRoutes(router *gin.Engine, srv *server) {
	router.Use(reqctx.Middleware())

	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		// 決済プロバイダーからのサーバー間通知は Origin も Cookie も持たないため CSRF 検証の外に置く
		ipn := api.Group("/payments", srv.enforcer.HeadersOnly())
		{
			ipn.GET("/ipn", srv.handleIPN)
			ipn.POST("/ipn", srv.handleIPN)
		}

		browser := api.Group("")
		browser.Use(
			srv.enforcer.Middleware(),
			ratelimit.Headers(srv.limits, srv.enforcer),
			srv.enforcer.CSRFCookie(),
		)
		{
			// プリフライトは Middleware 内で応答済み
			browser.OPTIONS("/*any", func(c *gin.Context) {})

			browser.GET("/csrf", srv.handleCSRF)
			browser.POST("/plan", srv.handlePlan)
			browser.POST("/newsletter", srv.handleNewsletter)
			browser.POST("/auth/password-reset", srv.handlePasswordReset)
			browser.POST("/checkout", srv.auth.RequireLogin(), srv.handleCheckout)

			admin := browser.Group("/admin", srv.auth.RequireAdmin())
			{
				admin.GET("/transactions/:id", srv.handleGetTransaction)
			}
		}
	}
}
