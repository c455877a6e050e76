package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	txnKeyPrefix = "txn:"
	maxTxRetries = 5
)

// ErrNotFound は取引レコードが存在しないことを表します。
var ErrNotFound = errors.New("transaction not found")

// Store は取引レコードを Redis に保存します。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get は取引レコードを取得します。存在しない場合は nil, nil を返します。
func (s *Store) Get(ctx context.Context, trackingID string) (*Transaction, error) {
	if trackingID == "" {
		return nil, fmt.Errorf("trackingID is required")
	}
	data, err := s.rdb.Get(ctx, txnKey(trackingID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var txn Transaction
	if err := json.Unmarshal(data, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// Upsert は取引レコードを保存します（存在しない場合は作成）。
func (s *Store) Upsert(ctx context.Context, txn *Transaction) error {
	if txn == nil {
		return fmt.Errorf("transaction is nil")
	}
	if txn.TrackingID == "" {
		return fmt.Errorf("trackingID is required")
	}
	now := time.Now().UTC()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	txn.UpdatedAt = now

	payload, err := json.Marshal(txn)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, txnKey(txn.TrackingID), payload, s.ttl).Err()
}

// MarkStatus はプロバイダーから得た状態を反映します。
// レコードが無い場合（IPN が先に届いた場合など）は新規に作ります。
func (s *Store) MarkStatus(ctx context.Context, trackingID string, report StatusReport) (*Transaction, error) {
	var updated *Transaction
	err := s.update(ctx, trackingID, func(txn *Transaction) {
		txn.Status = report.Status
		if report.MerchantReference != "" {
			txn.MerchantReference = report.MerchantReference
		}
		if report.Amount > 0 {
			txn.Amount = report.Amount
		}
		if report.Currency != "" {
			txn.Currency = report.Currency
		}
		if report.PaymentMethod != "" {
			txn.PaymentMethod = report.PaymentMethod
		}
		copied := *txn
		updated = &copied
	})
	return updated, err
}

func (s *Store) update(ctx context.Context, trackingID string, mutate func(*Transaction)) error {
	if trackingID == "" {
		return fmt.Errorf("trackingID is required")
	}
	key := txnKey(trackingID)
	apply := func(tx *redis.Tx) error {
		txn := Transaction{TrackingID: trackingID, Status: StatusPending}
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, &txn); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if txn.CreatedAt.IsZero() {
			txn.CreatedAt = now
		}
		mutate(&txn)
		txn.UpdatedAt = now
		payload, err := json.Marshal(&txn)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, apply, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction %s: too many concurrent updates", trackingID)
}

func txnKey(id string) string {
	return txnKeyPrefix + id
}
