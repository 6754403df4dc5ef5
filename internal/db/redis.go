package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisOpts struct {
	Addr        string        // "127.0.0.1:6379" or a redis:// / rediss:// URL
	Password    string        // optional, overrides the URL's
	DB          int           // default 0
	DialTimeout time.Duration // default 5s
}

func redisOptions(opts RedisOpts) (*redis.Options, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("empty Redis address")
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	if strings.HasPrefix(opts.Addr, "redis://") || strings.HasPrefix(opts.Addr, "rediss://") {
		o, err := redis.ParseURL(opts.Addr)
		if err != nil {
			return nil, fmt.Errorf("parse Redis URL: %w", err)
		}
		if opts.Password != "" {
			o.Password = opts.Password
		}
		if opts.DB != 0 {
			o.DB = opts.DB
		}
		o.DialTimeout = opts.DialTimeout
		return o, nil
	}

	return &redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	}, nil
}

func NewRedisClient(opts RedisOpts) (*redis.Client, error) {
	o, err := redisOptions(opts)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(o)
	ctx, cancel := context.WithTimeout(context.Background(), o.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}
