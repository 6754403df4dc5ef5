package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, mode model.TriggerMode) (model.RunSummary, error)

func (f runnerFunc) Run(ctx context.Context, mode model.TriggerMode) (model.RunSummary, error) {
	return f(ctx, mode)
}

func TestNew_Validation(t *testing.T) {
	noop := runnerFunc(func(context.Context, model.TriggerMode) (model.RunSummary, error) {
		return model.RunSummary{}, nil
	})

	cases := []struct {
		name    string
		expr    string
		tz      string
		wantErr bool
	}{
		{"five fields", "0 9 * * *", "", false},
		{"with seconds", "*/5 * * * * *", "UTC", false},
		{"descriptor", "@daily", "Europe/Berlin", false},
		{"every", "@every 1h", "", false},
		{"empty", "", "", true},
		{"garbage", "not a cron", "", true},
		{"bad timezone", "@daily", "Mars/Olympus", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.expr, tc.tz, noop, nil)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduler_FiresScheduledRuns(t *testing.T) {
	var fired atomic.Int32
	modes := make(chan model.TriggerMode, 8)
	r := runnerFunc(func(_ context.Context, mode model.TriggerMode) (model.RunSummary, error) {
		fired.Add(1)
		select {
		case modes <- mode:
		default:
		}
		return model.RunSummary{RunID: "r"}, nil
	})

	s, err := New("@every 1s", "", r, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	select {
	case mode := <-modes:
		assert.Equal(t, model.TriggerScheduled, mode)
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler never fired")
	}
	assert.GreaterOrEqual(t, fired.Load(), int32(1))
}

func TestScheduler_RunnerErrorDoesNotStopSchedule(t *testing.T) {
	var fired atomic.Int32
	r := runnerFunc(func(context.Context, model.TriggerMode) (model.RunSummary, error) {
		fired.Add(1)
		return model.RunSummary{}, errors.New("empty catalog")
	})

	s, err := New("@every 1s", "", r, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool { return fired.Load() >= 2 }, 4*time.Second, 50*time.Millisecond)
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s, err := New("@daily", "", runnerFunc(func(context.Context, model.TriggerMode) (model.RunSummary, error) {
		return model.RunSummary{}, nil
	}), nil)
	require.NoError(t, err)

	s.Stop(context.Background())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	s.Stop(context.Background())
	s.Stop(context.Background())
}
