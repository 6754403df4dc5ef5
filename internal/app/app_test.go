package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmehdipour/notify-gateway/internal/config"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"github.com/jmehdipour/notify-gateway/internal/service/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestOpen_FileStore(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Store.Path = filepath.Join(t.TempDir(), "nested", "subs.json")

	res, err := Open(cfg, true)
	require.NoError(t, err)
	defer res.Close()

	_, ok := res.Store.(*repository.FileSubscribersRepository)
	assert.True(t, ok)
	assert.Nil(t, res.Redis)
	assert.Nil(t, res.Deliveries, "empty clickhouse dsn disables the delivery log")
}

func TestOpen_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig(t)
	cfg.Store.Driver = config.StoreRedis
	cfg.Redis.Addr = mr.Addr()

	res, err := Open(cfg, false)
	require.NoError(t, err)
	defer res.Close()

	require.NotNil(t, res.Redis)
	subs := model.Subscribers{"9": {Token: "t", URL: "https://push.example.com", Enabled: true, AddedAt: time.Unix(0, 0).UTC()}}
	require.NoError(t, res.Store.Save(context.Background(), subs))
	assert.True(t, mr.Exists(cfg.Store.RedisKey))
}

func TestOpen_Errors(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Store.Driver = config.StoreRedis
	_, err := Open(cfg, false)
	assert.ErrorContains(t, err, "redis.addr")

	cfg = baseConfig(t)
	cfg.Store.Driver = "postgres"
	_, err = Open(cfg, false)
	assert.ErrorContains(t, err, "unknown store driver")

	cfg = baseConfig(t)
	cfg.Store.Driver = config.StoreMySQL
	cfg.MySQL.DSN = ""
	_, err = Open(cfg, false)
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("store:\n  driver: memory\nlog:\n  level: debug\n"), 0o644))

	cfg, err := LoadConfig(good)
	require.NoError(t, err)
	assert.Equal(t, config.StoreMemory, cfg.Store.Driver)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("store:\n  driver: cassandra\n"), 0o644))
	_, err = LoadConfig(bad)
	assert.ErrorContains(t, err, "invalid config")
}

func TestNewBroadcaster_AppliesConfig(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Broadcast.Workers = 3

	reg := registry.New(repository.NewMemorySubscribersRepository(), nil)
	svc := NewBroadcaster(cfg, reg, nil)
	assert.Equal(t, 3, svc.Workers)
	assert.Nil(t, svc.Deliveries)
	assert.NotNil(t, svc.Limiter)

	sum, err := svc.Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	assert.Zero(t, sum.Attempted)
}
