package main

import (
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/eve-on-safari/internal/config"
	"github.com/yourusername/eve-on-safari/internal/outbound"
	"github.com/yourusername/eve-on-safari/internal/payments"
	"github.com/yourusername/eve-on-safari/internal/seclog"
)

type paymentsStack struct {
	rdb      *redis.Client
	store    *payments.Store
	provider *payments.Provider
	queue    *payments.Queue
}

func setupPayments(cfg *config.Settings, policy *config.Resolver, logger *seclog.Logger) (*paymentsStack, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	ttlMinutes := cfg.JobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 60 * 24
	}
	store := payments.NewStore(redisClient, time.Duration(ttlMinutes)*time.Minute)

	// 許可ホストは PAYMENT_ALLOWED_HOSTS を毎回読み直す
	provider := payments.NewProvider(cfg.PaymentAPIBaseURL, cfg.PaymentAPIKey, outbound.NewClient(policy, nil, nil, logger))

	queue, err := payments.NewQueue(cfg.QueueRedisURL, store, provider, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}
	return &paymentsStack{
		rdb:      redisClient,
		store:    store,
		provider: provider,
		queue:    queue,
	}, nil
}

func (p *paymentsStack) close() error {
	qErr := p.queue.Shutdown()
	if err := p.rdb.Close(); err != nil {
		return err
	}
	return qErr
}
