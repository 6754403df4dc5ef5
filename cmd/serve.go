package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/app"
	httpSrv "github.com/jmehdipour/notify-gateway/internal/http"
	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/internal/scheduler"
	"github.com/jmehdipour/notify-gateway/internal/service/ingest"
	"github.com/jmehdipour/notify-gateway/internal/service/registry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server (webhook, broadcast trigger, reports)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		log := logger.Log

		res, err := app.Open(cfg, true)
		if err != nil {
			return err
		}
		defer res.Close()

		reg := registry.New(res.Store, log.Named("registry"))
		ing := ingest.New(reg, log.Named("ingest"))
		bc := app.NewBroadcaster(cfg, reg, res.Deliveries)

		server := httpSrv.NewServer(cfg, httpSrv.Deps{
			Ingestor:    ing,
			Broadcaster: bc,
			Deliveries:  res.Deliveries,
			Redis:       res.Redis,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var sch *scheduler.Scheduler
		if cfg.Scheduler.Cron != "" {
			sch, err = scheduler.New(cfg.Scheduler.Cron, cfg.Scheduler.Timezone, bc, log.Named("scheduler"))
			if err != nil {
				return err
			}
			if err := sch.Start(ctx); err != nil {
				return err
			}
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		select {
		case <-ctx.Done():
			log.Info("signal received, shutting down")
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", zap.Error(err))
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if sch != nil {
			sch.Stop(shutdownCtx)
		}
		_ = server.Shutdown(shutdownCtx)

		return nil
	},
}
