package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/yourusername/eve-on-safari/internal/seclog"
	"github.com/yourusername/eve-on-safari/internal/validate"
)

const (
	TaskTypeStatus = "payment:status"
	queueName      = "payments"
)

// StatusChecker は取引状態を問い合わせるものです。*Provider が満たします。
type StatusChecker interface {
	TransactionStatus(ctx context.Context, trackingID string) (*StatusReport, error)
}

// StatusPayload は状態確認ジョブのペイロードです。
type StatusPayload struct {
	TrackingID string `json:"trackingId"`
}

// Queue は IPN 受信後の状態確認ジョブを Asynq で処理します。
type Queue struct {
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    *Store
	provider StatusChecker
	log      *seclog.Logger
}

// NewQueue は Queue を初期化します。
func NewQueue(redisURL string, store *Store, provider StatusChecker, logger *seclog.Logger) (*Queue, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if provider == nil {
		return nil, errors.New("provider is nil")
	}
	if logger == nil {
		logger = seclog.Nop()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	q := &Queue{
		client: asynq.NewClient(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				queueName: 1,
			},
		}),
		mux:      asynq.NewServeMux(),
		store:    store,
		provider: provider,
		log:      logger,
	}
	q.mux.HandleFunc(TaskTypeStatus, q.handleStatusTask)
	return q, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (q *Queue) StartWorkers() {
	go func() {
		if err := q.server.Run(q.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			q.log.Error("payments.worker_stopped", map[string]any{"error": err.Error()})
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (q *Queue) Shutdown() error {
	q.server.Shutdown()
	return q.client.Close()
}

// EnqueueStatusCheck は状態確認ジョブを投入します。
func (q *Queue) EnqueueStatusCheck(ctx context.Context, trackingID string) (string, error) {
	id := validate.TransactionID(trackingID)
	if !id.OK {
		return "", fmt.Errorf("invalid tracking id")
	}
	body, err := json.Marshal(StatusPayload{TrackingID: id.Data})
	if err != nil {
		return "", err
	}
	task := asynq.NewTask(TaskTypeStatus, body, asynq.Queue(queueName))
	info, err := q.client.EnqueueContext(ctx, task, asynq.MaxRetry(5))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (q *Queue) handleStatusTask(ctx context.Context, task *asynq.Task) error {
	var payload StatusPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	id := validate.TransactionID(payload.TrackingID)
	if !id.OK {
		q.log.Warn("payments.invalid_task", map[string]any{"trackingId": payload.TrackingID})
		return fmt.Errorf("%w: invalid tracking id", asynq.SkipRetry)
	}

	report, err := q.provider.TransactionStatus(ctx, id.Data)
	if err != nil {
		q.log.Warn("payments.status_lookup_failed", map[string]any{
			"trackingId": id.Data,
			"error":      err.Error(),
		})
		return err
	}

	txn, err := q.store.MarkStatus(ctx, id.Data, *report)
	if err != nil {
		return err
	}
	q.log.Info("payments.status_updated", map[string]any{
		"trackingId":        txn.TrackingID,
		"merchantReference": txn.MerchantReference,
		"status":            txn.Status,
	})
	return nil
}
