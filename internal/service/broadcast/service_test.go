package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/dispatcher"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"github.com/jmehdipour/notify-gateway/internal/service/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentCall struct {
	endpoint string
	n        model.Notification
}

type fakeSender struct {
	mu    sync.Mutex
	calls []sentCall
	fail  map[string]bool // endpoint -> fail
}

func (f *fakeSender) Send(_ context.Context, endpoint string, n model.Notification) (dispatcher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCall{endpoint: endpoint, n: n})
	if f.fail[endpoint] {
		return dispatcher.Result{}, errors.New("provider returned 502")
	}
	return dispatcher.Result{StatusCode: 200, SuccessfulTokens: n.Tokens}, nil
}

func (f *fakeSender) Calls() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.calls...)
}

type countingLimiter struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (l *countingLimiter) Wait(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits++
	return l.err
}

type memoryLog struct {
	rows []model.Delivery
	err  error
}

func (m *memoryLog) InsertBatch(_ context.Context, rows []model.Delivery) error {
	m.rows = append(m.rows, rows...)
	return m.err
}

var fixedNow = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T, subs model.Subscribers, sender dispatcher.Sender) (*Service, *countingLimiter) {
	t.Helper()

	repo := repository.NewMemorySubscribersRepository()
	require.NoError(t, repo.Save(context.Background(), subs))

	svc := New(registry.New(repo, nil), sender, Config{
		Messages:             []string{"Come back and play!", "Your streak is waiting"},
		Title:                "Daily reminder",
		TargetURL:            "https://game.example.com",
		NotificationIDPrefix: "daily-reminder",
	}, nil)

	lim := &countingLimiter{}
	svc.Limiter = lim
	svc.Pick = func(int) int { return 1 }
	svc.Now = func() time.Time { return fixedNow }
	return svc, lim
}

func sub(token, url string, enabled bool) model.Subscriber {
	return model.Subscriber{Token: token, URL: url, Enabled: enabled, AddedAt: fixedNow}
}

func TestRun_EmptyStoreSendsNothing(t *testing.T) {
	sender := &fakeSender{}
	svc, lim := newService(t, model.Subscribers{}, sender)
	picked := false
	svc.Pick = func(int) int { picked = true; return 0 }

	sum, err := svc.Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)

	assert.Zero(t, sum.Attempted)
	assert.Zero(t, sum.Succeeded)
	assert.Zero(t, sum.Failed)
	assert.Empty(t, sum.Message)
	assert.False(t, picked)
	assert.Empty(t, sender.Calls())
	assert.Zero(t, lim.waits)
}

func TestRun_OnlyDisabledSubscribers(t *testing.T) {
	sender := &fakeSender{}
	svc, _ := newService(t, model.Subscribers{
		"7": sub("t7", "https://push.example.com/7", false),
	}, sender)

	sum, err := svc.Run(context.Background(), model.TriggerScheduled)
	require.NoError(t, err)
	assert.Zero(t, sum.Attempted)
	assert.Empty(t, sender.Calls())
}

func TestRun_DeliversOneMessageToEveryEnabledSubscriber(t *testing.T) {
	sender := &fakeSender{}
	svc, lim := newService(t, model.Subscribers{
		"1": sub("t1", "https://push.example.com/1", true),
		"2": sub("t2", "https://push.example.com/2", true),
		"3": sub("t3", "https://push.example.com/3", true),
		"4": sub("t4", "https://push.example.com/4", false),
	}, sender)

	sum, err := svc.Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Attempted)
	assert.Equal(t, 3, sum.Succeeded)
	assert.Zero(t, sum.Failed)
	assert.Equal(t, "Your streak is waiting", sum.Message)
	assert.Equal(t, model.TriggerManual, sum.Mode)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 3, lim.waits)

	calls := sender.Calls()
	require.Len(t, calls, 3)
	for i, c := range calls {
		id := fmt.Sprint(i + 1)
		assert.Equal(t, "https://push.example.com/"+id, c.endpoint)
		assert.Equal(t, []string{"t" + id}, c.n.Tokens)
		assert.Equal(t, "Your streak is waiting", c.n.Body)
		assert.Equal(t, "Daily reminder", c.n.Title)
		assert.Equal(t, "https://game.example.com", c.n.TargetURL)
		assert.Equal(t, "daily-reminder-2025-03-14", c.n.NotificationID)
	}
}

func TestRun_FailureDoesNotStopLaterDeliveries(t *testing.T) {
	sender := &fakeSender{fail: map[string]bool{"https://push.example.com/2": true}}
	svc, _ := newService(t, model.Subscribers{
		"1": sub("t1", "https://push.example.com/1", true),
		"2": sub("t2", "https://push.example.com/2", true),
		"3": sub("t3", "https://push.example.com/3", true),
	}, sender)
	dlog := &memoryLog{}
	svc.Deliveries = dlog

	sum, err := svc.Run(context.Background(), model.TriggerScheduled)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Attempted)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.Len(t, sender.Calls(), 3)

	require.Len(t, dlog.rows, 3)
	assert.Equal(t, model.StatusSent, dlog.rows[0].Status)
	assert.Equal(t, model.StatusFailed, dlog.rows[1].Status)
	assert.Contains(t, dlog.rows[1].Error, "502")
	assert.Equal(t, model.StatusSent, dlog.rows[2].Status)
	for _, r := range dlog.rows {
		assert.Equal(t, sum.RunID, r.RunID)
	}
}

func TestRun_DeliveryLogFailureIsNotFatal(t *testing.T) {
	sender := &fakeSender{}
	svc, _ := newService(t, model.Subscribers{
		"1": sub("t1", "https://push.example.com/1", true),
	}, sender)
	svc.Deliveries = &memoryLog{err: errors.New("clickhouse down")}

	sum, err := svc.Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
}

func TestRun_EmptyCatalog(t *testing.T) {
	svc, _ := newService(t, model.Subscribers{
		"1": sub("t1", "https://push.example.com/1", true),
	}, &fakeSender{})
	svc.cfg.Messages = nil

	_, err := svc.Run(context.Background(), model.TriggerManual)
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestRun_LimiterErrorCountsAsFailure(t *testing.T) {
	sender := &fakeSender{}
	svc, lim := newService(t, model.Subscribers{
		"1": sub("t1", "https://push.example.com/1", true),
		"2": sub("t2", "https://push.example.com/2", true),
	}, sender)
	lim.err = context.Canceled

	sum, err := svc.Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Attempted)
	assert.Equal(t, 2, sum.Failed)
	assert.Empty(t, sender.Calls())
}

func TestRun_ConcurrentWorkersAttemptEverySubscriber(t *testing.T) {
	subs := model.Subscribers{}
	for i := 0; i < 25; i++ {
		id := model.Identity(fmt.Sprintf("%02d", i))
		subs[id] = sub("tok"+id.String(), "https://push.example.com/"+id.String(), true)
	}
	sender := &fakeSender{fail: map[string]bool{"https://push.example.com/03": true}}
	svc, lim := newService(t, subs, sender)
	svc.Workers = 4

	sum, err := svc.Run(context.Background(), model.TriggerScheduled)
	require.NoError(t, err)

	assert.Equal(t, 25, sum.Attempted)
	assert.Equal(t, 24, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.Len(t, sender.Calls(), 25)
	assert.Equal(t, 25, lim.waits)
}

func TestIntervalLimiter_PacesDeliveries(t *testing.T) {
	sender := &fakeSender{}
	svc, _ := newService(t, model.Subscribers{
		"1": sub("t1", "https://push.example.com/1", true),
		"2": sub("t2", "https://push.example.com/2", true),
		"3": sub("t3", "https://push.example.com/3", true),
	}, sender)
	svc.Limiter = NewIntervalLimiter(40 * time.Millisecond)

	start := time.Now()
	sum, err := svc.Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Succeeded)
	// first send is immediate, the next two wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestIntervalLimiter_CancelledContext(t *testing.T) {
	lim := NewIntervalLimiter(time.Hour)
	require.NoError(t, lim.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, lim.Wait(ctx))
}
