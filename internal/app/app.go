// Package app opens the backends selected by config and builds the services
// shared by the serve, broadcast, subscribers and worker commands.
package app

import (
	"errors"
	"fmt"

	"github.com/jmehdipour/notify-gateway/internal/config"
	"github.com/jmehdipour/notify-gateway/internal/db"
	"github.com/jmehdipour/notify-gateway/internal/dispatcher"
	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"github.com/jmehdipour/notify-gateway/internal/service/broadcast"
	"github.com/jmehdipour/notify-gateway/internal/service/registry"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LoadConfig loads and validates config, then initializes the global logger.
func LoadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Encoding)
	return cfg, nil
}

// Resources are the opened backends. Optional ones are nil when not configured.
type Resources struct {
	Store      repository.SubscribersRepository
	Redis      *redis.Client
	MySQL      *sqlx.DB
	ClickHouse *sqlx.DB
	Deliveries repository.DeliveriesRepository

	closers []func() error
}

// Open connects the subscription store backend, Redis when an address is
// set, and the ClickHouse delivery log when withDeliveries and a DSN is set.
func Open(cfg config.Config, withDeliveries bool) (*Resources, error) {
	res := &Resources{}
	if err := res.open(cfg, withDeliveries); err != nil {
		res.Close()
		return nil, err
	}
	return res, nil
}

func (r *Resources) open(cfg config.Config, withDeliveries bool) error {
	if cfg.Redis.Addr != "" {
		rdb, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		r.Redis = rdb
		r.closers = append(r.closers, rdb.Close)
	}

	switch cfg.Store.Driver {
	case config.StoreMemory:
		r.Store = repository.NewMemorySubscribersRepository()

	case config.StoreFile:
		fr, err := repository.NewFileSubscribersRepository(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("file store: %w", err)
		}
		r.Store = fr

	case config.StoreRedis:
		if r.Redis == nil {
			return errors.New("redis store: redis.addr is not set")
		}
		r.Store = repository.NewRedisSubscribersRepository(r.Redis, cfg.Store.RedisKey)

	case config.StoreMySQL:
		mdb, err := db.NewMySQLConnection(cfg.MySQL.DSN, mysqlOpts(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		r.MySQL = mdb
		r.closers = append(r.closers, mdb.Close)
		r.Store = repository.NewMySQLSubscribersRepository(mdb)

	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if withDeliveries && cfg.ClickHouse.DSN != "" {
		ch, err := OpenClickHouse(cfg.ClickHouse)
		if err != nil {
			return err
		}
		r.ClickHouse = ch
		r.closers = append(r.closers, ch.Close)
		r.Deliveries = repository.NewCHDeliveriesRepository(ch)
	}
	return nil
}

// Close releases backends in reverse open order.
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logger.Log.Warn("close backend", zap.Error(err))
		}
	}
	r.closers = nil
}

func mysqlOpts(c config.DatabaseConfig) db.MySQLOpts {
	return db.MySQLOpts{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		PingTimeout:     c.PingTimeout,
	}
}

// OpenMySQL connects using the mysql section regardless of the store driver.
func OpenMySQL(c config.DatabaseConfig) (*sqlx.DB, error) {
	mdb, err := db.NewMySQLConnection(c.DSN, mysqlOpts(c))
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}
	return mdb, nil
}

func OpenClickHouse(c config.DatabaseConfig) (*sqlx.DB, error) {
	ch, err := db.NewClickHouseConnection(db.ClickHouseOpts{
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		PingTimeout:     c.PingTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse connect: %w", err)
	}
	return ch, nil
}

// NewBroadcaster builds the broadcast service with the HTTP provider client
// and the pacing, concurrency and delivery log from config.
func NewBroadcaster(cfg config.Config, reg *registry.Registry, deliveries repository.DeliveriesRepository) *broadcast.Service {
	svc := broadcast.New(reg, dispatcher.NewHTTPProvider(cfg.Broadcast.Timeout), broadcast.Config{
		Messages:             cfg.Broadcast.Messages,
		Title:                cfg.Broadcast.Title,
		TargetURL:            cfg.Broadcast.TargetURL,
		NotificationIDPrefix: cfg.Broadcast.NotificationIDPrefix,
	}, logger.Log.Named("broadcast"))

	svc.Limiter = broadcast.NewIntervalLimiter(cfg.Broadcast.Interval)
	if cfg.Broadcast.Workers > 0 {
		svc.Workers = cfg.Broadcast.Workers
	}
	if deliveries != nil {
		svc.Deliveries = deliveries
	}
	return svc
}
