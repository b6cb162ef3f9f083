package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reading-club-system/models"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisKey = "club:snapshot"
	historyLength   = 24
)

// RedisStore keeps the latest snapshot at key and a short rolling history at
// key:history for manual recovery.
type RedisStore struct {
	rdb *redis.Client
	key string
}

func NewRedisStore(opts *redis.Options, key string) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{rdb: redis.NewClient(opts), key: key}
}

func NewRedisStoreFromURL(url, key string) (*RedisStore, error) {
	if url == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis storage")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStore(opts, key), nil
}

func (s *RedisStore) historyKey() string { return s.key + ":history" }

func (s *RedisStore) Save(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key, data, 0)
		pipe.LPush(ctx, s.historyKey(), data)
		pipe.LTrim(ctx, s.historyKey(), 0, historyLength-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write snapshot to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*models.Snapshot, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot from redis: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
