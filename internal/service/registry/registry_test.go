package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenRepo struct {
	loadErr error
	saveErr error
	saves   int
	subs    model.Subscribers
}

func (b *brokenRepo) Load(context.Context) (model.Subscribers, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return b.subs.Clone(), nil
}

func (b *brokenRepo) Save(_ context.Context, subs model.Subscribers) error {
	b.saves++
	if b.saveErr != nil {
		return b.saveErr
	}
	b.subs = subs.Clone()
	return nil
}

func TestRegistry_GetFailOpen(t *testing.T) {
	reg := New(&brokenRepo{loadErr: errors.New("disk on fire")}, nil)

	got := reg.Get(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRegistry_PutSurfacesWriteErrors(t *testing.T) {
	cause := errors.New("read-only filesystem")
	reg := New(&brokenRepo{saveErr: cause}, nil)

	err := reg.Put(context.Background(), model.Subscribers{"u1": {}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.ErrorIs(t, err, cause)
}

func TestRegistry_UpdateSkipsWriteWhenUnchanged(t *testing.T) {
	repo := &brokenRepo{subs: model.Subscribers{}}
	reg := New(repo, nil)

	changed, err := reg.Update(context.Background(), func(model.Subscribers) bool { return false })
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, repo.saves)
}

func TestRegistry_UpdateAbortsOnReadError(t *testing.T) {
	repo := &brokenRepo{loadErr: errors.New("timeout")}
	reg := New(repo, nil)

	called := false
	_, err := reg.Update(context.Background(), func(model.Subscribers) bool { called = true; return true })
	assert.ErrorIs(t, err, ErrStoreRead)
	assert.False(t, called)
	assert.Equal(t, 0, repo.saves)
}

func TestRegistry_PutGetRoundTrip(t *testing.T) {
	reg := New(repository.NewMemorySubscribersRepository(), nil)
	ctx := context.Background()

	want := model.Subscribers{
		"u1": {Token: "t1", URL: "https://x/y", Enabled: true},
		"u2": {Token: "t2", URL: "https://x/z"},
	}
	require.NoError(t, reg.Put(ctx, want))
	assert.Equal(t, want, reg.Get(ctx))
}

func TestRegistry_ConcurrentUpdatesAreSerialized(t *testing.T) {
	reg := New(repository.NewMemorySubscribersRepository(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Update(ctx, func(subs model.Subscribers) bool {
				subs[model.Identity(fmt.Sprintf("u%d", i))] = model.Subscriber{Token: "t", URL: "https://x", Enabled: true}
				return true
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, reg.Get(ctx), 50)
}
