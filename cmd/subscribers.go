package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/app"
	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/service/registry"
	"github.com/jmehdipour/notify-gateway/internal/util"
	"github.com/spf13/cobra"
)

var errUnknownSubscriber = errors.New("unknown subscriber")

var listAll bool

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "Inspect and manage stored subscribers",
}

var subscribersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscribers (enabled only unless --all)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(func(ctx context.Context, reg *registry.Registry) error {
			subs := reg.Get(ctx)

			ids := make([]string, 0, len(subs))
			for id, s := range subs {
				if listAll || s.Enabled {
					ids = append(ids, id.String())
				}
			}
			sort.Strings(ids)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FID\tENABLED\tENDPOINT\tADDED")
			for _, id := range ids {
				s := subs[model.Identity(id)]
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", id, s.Enabled, util.RedactEndpoint(s.URL), s.AddedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		})
	},
}

var subscribersDisableCmd = &cobra.Command{
	Use:   "disable <fid>",
	Short: "Stop delivering to a subscriber, keeping its credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, model.Identity(args[0]), false)
	},
}

var subscribersEnableCmd = &cobra.Command{
	Use:   "enable <fid>",
	Short: "Resume delivering to a previously disabled subscriber",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, model.Identity(args[0]), true)
	},
}

func init() {
	subscribersListCmd.Flags().BoolVar(&listAll, "all", false, "include disabled subscribers")
	subscribersCmd.AddCommand(subscribersListCmd, subscribersDisableCmd, subscribersEnableCmd)
}

func setEnabled(cmd *cobra.Command, fid model.Identity, enabled bool) error {
	return withRegistry(func(ctx context.Context, reg *registry.Registry) error {
		var found, hasCredential bool
		_, err := reg.Update(ctx, func(subs model.Subscribers) bool {
			s, ok := subs[fid]
			if !ok {
				return false
			}
			found = true
			hasCredential = s.Token != "" && s.URL != ""
			if s.Enabled == enabled || (enabled && !hasCredential) {
				return false
			}
			s.Enabled = enabled
			subs[fid] = s
			return true
		})
		switch {
		case err != nil:
			return err
		case !found:
			return fmt.Errorf("%w: %s", errUnknownSubscriber, fid)
		case enabled && !hasCredential:
			return fmt.Errorf("subscriber %s has no delivery credential", fid)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%t\n", fid, enabled)
		return nil
	})
}

func withRegistry(fn func(ctx context.Context, reg *registry.Registry) error) error {
	cfg, err := app.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	res, err := app.Open(cfg, false)
	if err != nil {
		return err
	}
	defer res.Close()

	return fn(context.Background(), registry.New(res.Store, logger.Log.Named("registry")))
}
