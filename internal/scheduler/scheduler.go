package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner is the broadcast entry point fired on schedule.
type Runner interface {
	Run(ctx context.Context, mode model.TriggerMode) (model.RunSummary, error)
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler fires scheduled broadcast runs in process. Runs are not
// serialized: a slow run may overlap the next tick.
type Scheduler struct {
	expr   string
	loc    *time.Location
	runner Runner
	log    *zap.Logger

	mu     sync.Mutex
	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates expr and tz. An empty expr is rejected; callers skip the
// scheduler entirely when none is configured.
func New(expr, tz string, runner Runner, log *zap.Logger) (*Scheduler, error) {
	if expr == "" {
		return nil, errors.New("scheduler: empty cron expression")
	}
	if _, err := parser.Parse(expr); err != nil {
		return nil, fmt.Errorf("scheduler: parse %q: %w", expr, err)
	}

	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("scheduler: timezone %q: %w", tz, err)
		}
		loc = l
	}

	return &Scheduler{expr: expr, loc: loc, runner: runner, log: logger.OrNop(log)}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.expr, s.fire); err != nil {
		s.cancel()
		return fmt.Errorf("scheduler: add job: %w", err)
	}
	s.c = c
	c.Start()

	s.log.Info("scheduler started", zap.String("cron", s.expr), zap.String("tz", s.loc.String()))
	return nil
}

// Stop halts new ticks and waits for in-flight runs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out, cancelling in-flight runs")
	}
	s.cancel()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) fire() {
	sum, err := s.runner.Run(s.ctx, model.TriggerScheduled)
	if err != nil {
		s.log.Error("scheduled broadcast failed", zap.Error(err))
		return
	}
	s.log.Debug("scheduled broadcast done", zap.String("run", sum.RunID), zap.Int("attempted", sum.Attempted))
}
