package credits

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	acctKeyPrefix = "credits:acct:"
	txKeyPrefix   = "credits:tx:"

	// txTTL bounds how long refundable transactions are kept.
	txTTL = 30 * 24 * time.Hour
)

// RedisLedger persists balances in Redis. Deductions run inside a WATCH
// transaction so concurrent spends cannot overdraw an account.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger creates a ledger on the given Redis URL.
func NewRedisLedger(redisURL string) (*RedisLedger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisLedger{client: client}, nil
}

// Close releases the Redis connection.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

func acctKey(userID string) string { return acctKeyPrefix + userID }
func txKey(txID string) string     { return txKeyPrefix + txID }

func (l *RedisLedger) saveTx(ctx context.Context, pipe redis.Cmdable, tx *Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	pipe.Set(ctx, txKey(tx.ID), data, txTTL)
	return nil
}

func (l *RedisLedger) Grant(ctx context.Context, userID string, amount float64) (*Transaction, error) {
	balance, err := l.client.HIncrByFloat(ctx, acctKey(userID), "balance", amount).Result()
	if err != nil {
		return nil, fmt.Errorf("grant credits: %w", err)
	}
	l.client.HSet(ctx, acctKey(userID), "updated_at", time.Now().UTC().Format(time.RFC3339))

	tx := &Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Amount:       amount,
		BalanceAfter: balance,
		Type:         TxGrant,
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.saveTx(ctx, l.client, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (l *RedisLedger) Deduct(ctx context.Context, userID, model string, amount float64) (*Transaction, error) {
	var tx *Transaction

	deduct := func(rtx *redis.Tx) error {
		balance, err := rtx.HGet(ctx, acctKey(userID), "balance").Float64()
		if err == redis.Nil {
			return ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}
		if balance < amount {
			return ErrInsufficientCredits
		}

		newBalance := balance - amount
		tx = &Transaction{
			ID:           uuid.NewString(),
			UserID:       userID,
			Amount:       -amount,
			BalanceAfter: newBalance,
			Type:         TxSpend,
			Model:        model,
			CreatedAt:    time.Now().UTC(),
		}

		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, acctKey(userID), "balance", newBalance)
			pipe.HIncrByFloat(ctx, acctKey(userID), "total_spent", amount)
			pipe.HSet(ctx, acctKey(userID), "updated_at", time.Now().UTC().Format(time.RFC3339))
			return l.saveTx(ctx, pipe, tx)
		})
		return err
	}

	// Retry on write conflicts against the watched account key.
	for i := 0; i < 5; i++ {
		err := l.client.Watch(ctx, deduct, acctKey(userID))
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return tx, nil
	}
	return nil, fmt.Errorf("deduct credits: too many conflicts")
}

func (l *RedisLedger) Refund(ctx context.Context, userID, txID, reason string) (*Transaction, error) {
	data, err := l.client.Get(ctx, txKey(txID)).Bytes()
	if err == redis.Nil {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read transaction: %w", err)
	}

	var orig Transaction
	if err := json.Unmarshal(data, &orig); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if orig.UserID != userID || orig.Type != TxSpend {
		return nil, ErrTxNotFound
	}

	amount := -orig.Amount
	balance, err := l.client.HIncrByFloat(ctx, acctKey(userID), "balance", amount).Result()
	if err != nil {
		return nil, fmt.Errorf("refund credits: %w", err)
	}
	l.client.HIncrByFloat(ctx, acctKey(userID), "total_spent", -amount)
	l.client.HSet(ctx, acctKey(userID), "updated_at", time.Now().UTC().Format(time.RFC3339))

	tx := &Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Amount:       amount,
		BalanceAfter: balance,
		Type:         TxRefund,
		Model:        orig.Model,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.saveTx(ctx, l.client, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (l *RedisLedger) Balance(ctx context.Context, userID string) (*Account, error) {
	fields, err := l.client.HGetAll(ctx, acctKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read account: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrAccountNotFound
	}

	acct := &Account{UserID: userID}
	acct.Balance, _ = strconv.ParseFloat(fields["balance"], 64)
	acct.TotalSpent, _ = strconv.ParseFloat(fields["total_spent"], 64)
	if t, err := time.Parse(time.RFC3339, fields["updated_at"]); err == nil {
		acct.UpdatedAt = t
	}
	return acct, nil
}

// Verify interface compliance
var _ Ledger = (*RedisLedger)(nil)
