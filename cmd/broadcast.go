package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/notify-gateway/internal/app"
	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/service/registry"
	"github.com/spf13/cobra"
)

var broadcastMode string

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Run one broadcast now and print its summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, ok := model.ParseTriggerMode(broadcastMode)
		if !ok {
			return fmt.Errorf("invalid --mode %q (manual | scheduled)", broadcastMode)
		}

		cfg, err := app.LoadConfig(cfgPath)
		if err != nil {
			return err
		}

		res, err := app.Open(cfg, true)
		if err != nil {
			return err
		}
		defer res.Close()

		reg := registry.New(res.Store, logger.Log.Named("registry"))
		bc := app.NewBroadcaster(cfg, reg, res.Deliveries)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sum, err := bc.Run(ctx, mode)
		if err != nil {
			return fmt.Errorf("broadcast: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	},
}

func init() {
	broadcastCmd.Flags().StringVar(&broadcastMode, "mode", "manual", "trigger mode recorded for the run (manual | scheduled)")
}
