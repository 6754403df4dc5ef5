package broadcast

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/dispatcher"
	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/internal/metrics"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/service/registry"
	"github.com/jmehdipour/notify-gateway/internal/util"
	"go.uber.org/zap"
)

var ErrEmptyCatalog = errors.New("broadcast: message catalog is empty")

// DeliveryLog receives per-subscriber outcomes after a run (best-effort).
type DeliveryLog interface {
	InsertBatch(ctx context.Context, rows []model.Delivery) error
}

type Config struct {
	Messages             []string
	Title                string
	TargetURL            string
	NotificationIDPrefix string
}

// Service fans one reminder out to every enabled subscriber.
//   - picks a single message per run,
//   - paces deliveries through Limiter across Workers goroutines,
//   - never retries; a failed subscriber is simply tried again next run.
type Service struct {
	// Dependencies
	reg    *registry.Registry
	sender dispatcher.Sender
	cfg    Config
	log    *zap.Logger

	// Behavior
	Limiter    Limiter
	Workers    int             // 1 keeps store order strictly sequential
	Deliveries DeliveryLog     // optional
	Pick       func(n int) int // index into Messages
	Now        func() time.Time
}

// New builds a broadcaster with one worker and a one-per-second pace.
func New(reg *registry.Registry, sender dispatcher.Sender, cfg Config, log *zap.Logger) *Service {
	return &Service{
		reg:     reg,
		sender:  sender,
		cfg:     cfg,
		log:     logger.OrNop(log),
		Limiter: NewIntervalLimiter(time.Second),
		Workers: 1,
		Pick:    rand.IntN,
		Now:     time.Now,
	}
}

// Run performs one broadcast run and returns its summary.
// The only error is a setup failure (no messages to pick from); delivery
// failures are counted, not returned.
func (s *Service) Run(ctx context.Context, mode model.TriggerMode) (model.RunSummary, error) {
	if len(s.cfg.Messages) == 0 {
		return model.RunSummary{}, ErrEmptyCatalog
	}

	start := s.Now()
	sum := model.RunSummary{RunID: util.New(), Mode: mode, StartedAt: start}
	metrics.BroadcastRunsTotal.WithLabelValues(mode.String()).Inc()
	defer func() { metrics.BroadcastDuration.Observe(time.Since(start).Seconds()) }()

	targets := s.reg.Get(ctx).Enabled()
	if len(targets) == 0 {
		sum.FinishedAt = s.Now()
		s.log.Info("broadcast skipped, no enabled subscribers",
			zap.String("run", sum.RunID), zap.String("mode", mode.String()))
		return sum, nil
	}

	sum.Message = s.cfg.Messages[s.Pick(len(s.cfg.Messages))]
	base := model.Notification{
		NotificationID: model.DailyNotificationID(s.cfg.NotificationIDPrefix, start),
		Title:          s.cfg.Title,
		Body:           sum.Message,
		TargetURL:      s.cfg.TargetURL,
	}

	s.log.Info("broadcast started",
		zap.String("run", sum.RunID),
		zap.String("mode", mode.String()),
		zap.String("notification_id", base.NotificationID),
		zap.Int("total", len(targets)))

	results := s.deliverAll(ctx, sum.RunID, targets, base)

	for _, d := range results {
		sum.Attempted++
		if d.Status == model.StatusSent {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
	}
	sum.FinishedAt = s.Now()

	s.record(ctx, sum.RunID, results)

	fields := []zap.Field{
		zap.String("run", sum.RunID),
		zap.String("mode", mode.String()),
		zap.Int("attempted", sum.Attempted),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Duration("dur", sum.FinishedAt.Sub(start)),
	}
	if sum.Failed > 0 {
		s.log.Warn("broadcast finished with failures", fields...)
	} else {
		s.log.Info("broadcast finished", fields...)
	}
	return sum, nil
}

// deliverAll returns one Delivery per target, in target order.
func (s *Service) deliverAll(ctx context.Context, runID string, targets []model.Target, base model.Notification) []model.Delivery {
	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(targets) {
		workers = len(targets)
	}

	results := make([]model.Delivery, len(targets))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.deliver(ctx, runID, targets[i], base)
			}
		}()
	}

	for i := range targets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (s *Service) deliver(ctx context.Context, runID string, t model.Target, n model.Notification) model.Delivery {
	d := model.Delivery{
		RunID:          runID,
		FID:            t.FID.String(),
		NotificationID: n.NotificationID,
		Status:         model.StatusSent,
	}
	if err := s.attempt(ctx, runID, t, n); err != nil {
		d.Status = model.StatusFailed
		d.Error = err.Error()
	}
	d.CreatedAt = s.Now().UTC()
	metrics.DeliveriesTotal.WithLabelValues(d.Status.String()).Inc()
	return d
}

// attempt waits for a pacing slot and sends once.
func (s *Service) attempt(ctx context.Context, runID string, t model.Target, n model.Notification) error {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			s.log.Warn("delivery not attempted", zap.String("run", runID), zap.String("fid", t.FID.String()), zap.Error(err))
			return err
		}
	}

	n.Tokens = []string{t.Token}
	res, err := s.sender.Send(ctx, t.URL, n)
	if err != nil {
		s.log.Warn("delivery failed", zap.String("run", runID), zap.String("fid", t.FID.String()), zap.Error(err))
		return err
	}

	if len(res.InvalidTokens) > 0 || len(res.RateLimitedTokens) > 0 {
		s.log.Warn("provider did not accept token",
			zap.String("run", runID),
			zap.String("fid", t.FID.String()),
			zap.Int("invalid", len(res.InvalidTokens)),
			zap.Int("rate_limited", len(res.RateLimitedTokens)))
	}
	return nil
}

func (s *Service) record(ctx context.Context, runID string, rows []model.Delivery) {
	if s.Deliveries == nil {
		return
	}
	// outcomes are still worth keeping if the caller went away mid-run
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Deliveries.InsertBatch(rctx, rows); err != nil {
		s.log.Warn("delivery log write failed", zap.String("run", runID), zap.Error(err))
	}
}
