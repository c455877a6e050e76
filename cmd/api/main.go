// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/eve-on-safari/internal/auth"
	"github.com/yourusername/eve-on-safari/internal/config"
	"github.com/yourusername/eve-on-safari/internal/outbound"
	"github.com/yourusername/eve-on-safari/internal/security"
	"github.com/yourusername/eve-on-safari/internal/seclog"
)

func main() {
	logger := seclog.Default()

	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		logger.Error("server.config_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	policy := config.NewResolver()
	enforcer := security.NewEnforcer(policy, logger)

	// IDプロバイダーは決済ホストとは別の許可リストで呼び出す
	identityClient := outbound.NewClient(policy, func() map[string]struct{} {
		return outbound.HostSet(auth.IdentityHost(cfg.IdentityURL))
	}, nil, logger)
	authManager := auth.NewManager(auth.NewHTTPVerifier(cfg.IdentityURL, cfg.IdentityAPIKey, identityClient), enforcer)

	payments, err := setupPayments(cfg, policy, logger)
	if err != nil {
		logger.Error("server.payments_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	payments.queue.StartWorkers()

	srv := &server{
		settings: cfg,
		enforcer: enforcer,
		auth:     authManager,
		store:    payments.store,
		orders:   payments.provider,
		queue:    payments.queue,
		log:      logger,
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	setupRoutes(router, srv)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server.started", map[string]any{"addr": httpServer.Addr, "mode": cfg.GinMode})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server.listen_failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server.shutdown_failed", map[string]any{"error": err.Error()})
	}
	if err := payments.close(); err != nil {
		logger.Warn("server.payments_close_failed", map[string]any{"error": err.Error()})
	}
	logger.Info("server.stopped", nil)
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "eve-on-safari-api",
		"version": "0.1.0",
	})
}
