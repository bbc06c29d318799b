package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/pkg/model"
)

const defaultSignatureKeyPrefix = "otc:sig:"

// RedisLedger keeps consumed signature hashes in Redis. Inserts use SETNX so
// two racing callers cannot both record the same hash. Keys never expire: a
// record that disappears would make its signature valid again.
type RedisLedger struct {
	redis  *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisLedger wraps an existing client.
func NewRedisLedger(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = defaultSignatureKeyPrefix
	}
	return &RedisLedger{redis: rdb, prefix: prefix, logger: logger}
}

// DialRedis opens a client and pings it.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func (l *RedisLedger) key(hash string) string { return l.prefix + hash }

func (l *RedisLedger) GetUsedSignature(ctx context.Context, hash string) (*model.UsedSignature, error) {
	data, err := l.redis.Get(ctx, l.key(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get used signature: %w", err)
	}

	var rec model.UsedSignature
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode used signature %s: %w", hash, err)
	}
	return &rec, nil
}

func (l *RedisLedger) InsertUsedSignature(ctx context.Context, rec model.UsedSignature) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	ok, err := l.redis.SetNX(ctx, l.key(rec.SignatureHash), data, 0).Result()
	if err != nil {
		l.logger.Error("store.redis.mark_signature_failed",
			zap.String("signature_hash", rec.SignatureHash), zap.Error(err))
		return false, fmt.Errorf("redis setnx used signature: %w", err)
	}
	return ok, nil
}

// DeleteUsedSignature drops a reservation whose operation did not go through.
func (l *RedisLedger) DeleteUsedSignature(ctx context.Context, hash string) error {
	if err := l.redis.Del(ctx, l.key(hash)).Err(); err != nil {
		return fmt.Errorf("redis del used signature: %w", err)
	}
	return nil
}

func (l *RedisLedger) HealthCheck(ctx context.Context) error {
	if err := l.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// WithLedger returns a Store whose used-signature methods go to ledger and
// everything else to base.
func WithLedger(base Store, ledger SignatureLedger) Store {
	return &ledgerStore{Store: base, ledger: ledger}
}

type ledgerStore struct {
	Store
	ledger SignatureLedger
}

func (s *ledgerStore) GetUsedSignature(ctx context.Context, hash string) (*model.UsedSignature, error) {
	return s.ledger.GetUsedSignature(ctx, hash)
}

func (s *ledgerStore) InsertUsedSignature(ctx context.Context, rec model.UsedSignature) (bool, error) {
	return s.ledger.InsertUsedSignature(ctx, rec)
}

func (s *ledgerStore) DeleteUsedSignature(ctx context.Context, hash string) error {
	return s.ledger.DeleteUsedSignature(ctx, hash)
}
