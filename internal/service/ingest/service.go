package ingest

import (
	"context"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/internal/metrics"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/service/registry"
	"go.uber.org/zap"
)

// Outcome is the branch taken for one event.
type Outcome string

const (
	OutcomeSubscribed            Outcome = "subscribed"
	OutcomeSkippedMissingDetails Outcome = "skipped_missing_details"
	OutcomeUnsubscribed          Outcome = "unsubscribed"
	OutcomeUnknownSubscriber     Outcome = "unknown_subscriber"
	OutcomeIgnored               Outcome = "ignored"
	OutcomeStoreError            Outcome = "store_error"
)

func (o Outcome) String() string { return string(o) }

// Service applies subscription-change events to the registry.
//
// The fid in an event is trusted as-is; the social client's signature is not verified.
type Service struct {
	reg *registry.Registry
	log *zap.Logger
	now func() time.Time
}

func New(reg *registry.Registry, log *zap.Logger) *Service {
	return &Service{reg: reg, log: logger.OrNop(log), now: time.Now}
}

// WithClock overrides the time source used for addedAt.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Ingest applies ev. Only store failures are returned as errors; every other
// branch (missing details, unknown subscriber, unrecognized event) is a no-op.
func (s *Service) Ingest(ctx context.Context, ev model.WebhookEvent) (Outcome, error) {
	class := ev.Event.Class()
	outcome, err := s.apply(ctx, class, ev)
	metrics.WebhookEventsTotal.WithLabelValues(class.String(), outcome.String()).Inc()

	fields := []zap.Field{
		zap.String("event", ev.Event.String()),
		zap.String("fid", ev.FID.String()),
		zap.String("outcome", outcome.String()),
	}
	if err != nil {
		s.log.Error("subscription event not persisted", append(fields, zap.Error(err))...)
		return outcome, err
	}
	s.log.Info("subscription event processed", fields...)
	return outcome, nil
}

func (s *Service) apply(ctx context.Context, class model.EventClass, ev model.WebhookEvent) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		s.log.Warn("subscription event rejected", zap.String("event", ev.Event.String()), zap.Error(err))
		return OutcomeIgnored, nil
	}

	switch class {
	case model.EventClassEnabled:
		if !ev.HasDetails() {
			if ev.NotificationDetails != nil {
				s.log.Warn("notification details rejected",
					zap.String("fid", ev.FID.String()),
					zap.Error(ev.NotificationDetails.Validate()))
			}
			return OutcomeSkippedMissingDetails, nil
		}
		token, url := ev.Details()
		rec := model.Subscriber{
			Token:   token,
			URL:     url,
			Enabled: true,
			AddedAt: s.now().UTC().Truncate(time.Millisecond), // DATETIME(3) precision in the mysql backend
		}
		if _, err := s.reg.Update(ctx, func(subs model.Subscribers) bool {
			subs[ev.FID] = rec
			return true
		}); err != nil {
			return OutcomeStoreError, err
		}
		return OutcomeSubscribed, nil

	case model.EventClassDisabled:
		known := false
		if _, err := s.reg.Update(ctx, func(subs model.Subscribers) bool {
			sub, ok := subs[ev.FID]
			if !ok {
				return false
			}
			known = true
			if !sub.Enabled {
				return false
			}
			sub.Enabled = false
			subs[ev.FID] = sub
			return true
		}); err != nil {
			return OutcomeStoreError, err
		}
		if !known {
			return OutcomeUnknownSubscriber, nil
		}
		return OutcomeUnsubscribed, nil

	default:
		return OutcomeIgnored, nil
	}
}
