package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/app"
	"github.com/jmehdipour/notify-gateway/internal/kafka"
	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/internal/metrics"
	"github.com/jmehdipour/notify-gateway/internal/service/ingest"
	"github.com/jmehdipour/notify-gateway/internal/service/registry"
	"github.com/jmehdipour/notify-gateway/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Consume webhook events from Kafka into the subscription store",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := app.LoadConfig(cfgPath)
		if err != nil {
			return err
		}

		metrics.MustRegister(prometheus.DefaultRegisterer)

		// 2) store
		res, err := app.Open(cfg, false)
		if err != nil {
			return err
		}
		defer res.Close()

		reg := registry.New(res.Store, logger.Log.Named("registry"))
		ing := ingest.New(reg, logger.Log.Named("ingest"))

		// 3) kafka consumer
		consumer, err := kafka.NewConsumer(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			GroupID:        cfg.Kafka.GroupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer consumer.Close()

		w := worker.NewIngestKafka(consumer, ing, logger.Log.Named("worker"))
		if cfg.Kafka.Workers > 0 {
			w.Workers = cfg.Kafka.Workers
		}

		// 4) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Log.Info("ingest worker starting",
			zap.String("topic", cfg.Kafka.Topic),
			zap.String("group", cfg.Kafka.GroupID),
			zap.Int("workers", w.Workers))

		return w.Run(ctx)
	},
}
