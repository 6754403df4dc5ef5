package repository

import (
	"context"
	"sync"

	"github.com/jmehdipour/notify-gateway/internal/model"
)

// SubscribersRepository persists the whole subscriber snapshot.
// Load returns the full mapping; Save atomically replaces it.
type SubscribersRepository interface {
	Load(ctx context.Context) (model.Subscribers, error)
	Save(ctx context.Context, subs model.Subscribers) error
}

// MemorySubscribersRepository keeps the snapshot in process memory (dev and tests).
type MemorySubscribersRepository struct {
	mu   sync.RWMutex
	subs model.Subscribers
}

func NewMemorySubscribersRepository() *MemorySubscribersRepository {
	return &MemorySubscribersRepository{subs: model.Subscribers{}}
}

var _ SubscribersRepository = (*MemorySubscribersRepository)(nil)

func (r *MemorySubscribersRepository) Load(_ context.Context) (model.Subscribers, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subs.Clone(), nil
}

func (r *MemorySubscribersRepository) Save(_ context.Context, subs model.Subscribers) error {
	r.mu.Lock()
	r.subs = subs.Clone()
	r.mu.Unlock()
	return nil
}
