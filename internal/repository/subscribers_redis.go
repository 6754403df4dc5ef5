package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisSubscribersRepository keeps the same JSON document as the file driver under a single key.
type RedisSubscribersRepository struct {
	rdb *redis.Client
	key string
}

func NewRedisSubscribersRepository(rdb *redis.Client, key string) *RedisSubscribersRepository {
	if key == "" {
		key = "notifygw:subscribers"
	}
	return &RedisSubscribersRepository{rdb: rdb, key: key}
}

var _ SubscribersRepository = (*RedisSubscribersRepository)(nil)

func (r *RedisSubscribersRepository) Load(ctx context.Context) (model.Subscribers, error) {
	b, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Subscribers{}, nil
	}
	if err != nil {
		return nil, err
	}

	var subs model.Subscribers
	if err := json.Unmarshal(b, &subs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.key, err)
	}
	if subs == nil {
		subs = model.Subscribers{}
	}
	return subs, nil
}

func (r *RedisSubscribersRepository) Save(ctx context.Context, subs model.Subscribers) error {
	if subs == nil {
		subs = model.Subscribers{}
	}
	b, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("encode subscribers: %w", err)
	}
	return r.rdb.Set(ctx, r.key, b, 0).Err()
}
