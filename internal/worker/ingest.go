package worker

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/kafka"
	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/service/ingest"
	"go.uber.org/zap"
)

// EventSource is the subset of *kafka.Consumer the worker needs.
type EventSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

type Ingestor interface {
	Ingest(ctx context.Context, ev model.WebhookEvent) (ingest.Outcome, error)
}

// IngestKafka:
//   - fetches webhook events from Kafka,
//   - routes every event for one fid to the same processor, so a user's
//     events are applied in log order,
//   - applies them through the same ingestor as the HTTP webhook,
//   - commits a partition's offset only once everything before it is handled.
//
// Store write failures are not retried, mirroring the HTTP acknowledgement.
type IngestKafka struct {
	// Dependencies
	Source   EventSource
	Ingestor Ingestor
	Log      *zap.Logger

	// Behavior
	Workers    int           // number of goroutines applying events
	FetchPause time.Duration // back-off after a fetch error
}

func NewIngestKafka(src EventSource, ing Ingestor, log *zap.Logger) *IngestKafka {
	return &IngestKafka{
		Source:     src,
		Ingestor:   ing,
		Log:        logger.OrNop(log),
		Workers:    4,
		FetchPause: 200 * time.Millisecond,
	}
}

type job struct {
	tr  *tracked
	ev  model.WebhookEvent
	bad error // undecodable payload
}

// Run blocks until ctx is cancelled and all in-flight events are handled.
func (w *IngestKafka) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 1
	}
	if w.FetchPause <= 0 {
		w.FetchPause = 200 * time.Millisecond
	}
	w.Log = logger.OrNop(w.Log)

	offsets := newOffsetTracker()
	lanes := make([]chan job, w.Workers)

	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan job, 16)
		wg.Add(1)
		go func(in <-chan job) {
			defer wg.Done()
			for j := range in {
				w.processOne(ctx, j, offsets)
			}
		}(lanes[i])
	}

	w.Log.Info("ingest worker started", zap.Int("workers", w.Workers))
	w.fetchLoop(ctx, lanes, offsets)
	for _, l := range lanes {
		close(l)
	}
	wg.Wait()
	w.Log.Info("ingest worker stopped")
	return nil
}

func (w *IngestKafka) fetchLoop(ctx context.Context, lanes []chan job, offsets *offsetTracker) {
	for {
		m, err := w.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Log.Warn("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.FetchPause):
			}
			continue
		}

		j := job{tr: offsets.track(m)}
		if err := json.Unmarshal(m.Value, &j.ev); err != nil {
			j.bad = err
		}

		select {
		case lanes[laneFor(j.ev.FID, m.Key, len(lanes))] <- j:
		case <-ctx.Done():
			return
		}
	}
}

// laneFor picks a processor by fid, falling back to the message key for
// events without one.
func laneFor(fid model.Identity, key []byte, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	if fid != "" {
		_, _ = h.Write([]byte(fid))
	} else {
		_, _ = h.Write(key)
	}
	return int(h.Sum32() % uint32(n))
}

func (w *IngestKafka) processOne(ctx context.Context, j job, offsets *offsetTracker) {
	m := j.tr.msg
	if j.bad != nil {
		w.Log.Warn("bad event json, skipping",
			zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(j.bad))
	} else {
		// errors are logged and counted by the ingestor
		_, _ = w.Ingestor.Ingest(ctx, j.ev)
	}

	c, ok := offsets.finish(j.tr)
	if !ok {
		return
	}
	// commit on a detached context so a shutdown does not replay handled events
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.Source.Commit(cctx, c); err != nil {
		w.Log.Warn("kafka commit failed", zap.Int64("offset", c.Offset), zap.Error(err))
	}
}
