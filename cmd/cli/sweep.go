package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/turtacn/apishield/internal/bootstrap"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired bans and stale counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				resp, err := app.Shield.Sweep(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}

	bansCmd := &cobra.Command{
		Use:   "bans",
		Short: "Remove expired or malformed ban records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				n, err := app.Admission.Sweeper().SweepBans(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int{"bans_removed": n})
			})
		},
	}

	identitiesCmd := &cobra.Command{
		Use:   "identities",
		Short: "Remove counters whose window started more than shield.ip_ttl ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				n, err := app.Admission.Sweeper().SweepStaleIdentityRecords(ctx, app.Config.Shield.IPTTL)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int{"identities_removed": n})
			})
		},
	}

	sweepCmd.AddCommand(bansCmd, identitiesCmd)
	return sweepCmd
}
