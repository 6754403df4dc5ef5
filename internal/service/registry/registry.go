package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/internal/metrics"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrStoreRead  = errors.New("subscription store read failed")
	ErrStoreWrite = errors.New("subscription store write failed")
)

// Registry is the subscription store used by the ingestor and the broadcaster.
//
// Reads are fail-open: Get logs a backend failure and reports an empty store,
// so a broken backend turns a broadcast into a no-op instead of an error.
// Writes are not: Put and Update return ErrStoreWrite so callers can alert.
// Update serializes read-modify-write cycles within the process.
type Registry struct {
	repo repository.SubscribersRepository
	log  *zap.Logger

	mu sync.Mutex
}

func New(repo repository.SubscribersRepository, log *zap.Logger) *Registry {
	return &Registry{repo: repo, log: logger.OrNop(log)}
}

// Get returns the current mapping, or an empty one if the backend cannot be read.
func (r *Registry) Get(ctx context.Context) model.Subscribers {
	subs, err := r.repo.Load(ctx)
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("read").Inc()
		r.log.Error("subscription store read failed, treating as empty", zap.Error(err))
		return model.Subscribers{}
	}
	return subs
}

// Put replaces the persisted mapping.
func (r *Registry) Put(ctx context.Context, subs model.Subscribers) error {
	if err := r.repo.Save(ctx, subs); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("write").Inc()
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	return nil
}

// Update loads the mapping, applies fn and saves it when fn reports a change.
// Unlike Get, a failed load aborts the update: writing back an empty
// snapshot would wipe every other subscriber.
func (r *Registry) Update(ctx context.Context, fn func(subs model.Subscribers) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, err := r.repo.Load(ctx)
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("read").Inc()
		return false, fmt.Errorf("%w: %w", ErrStoreRead, err)
	}
	if subs == nil {
		subs = model.Subscribers{}
	}

	if !fn(subs) {
		return false, nil
	}
	if err := r.Put(ctx, subs); err != nil {
		return false, err
	}
	return true, nil
}
