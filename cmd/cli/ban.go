package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/apishield/internal/bootstrap"
)

func newBanCmd(opts *rootOptions) *cobra.Command {
	banCmd := &cobra.Command{
		Use:   "ban",
		Short: "Inspect and edit identity bans",
	}

	statusCmd := &cobra.Command{
		Use:   "status IDENTITY",
		Short: "Show the ban of an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				resp, err := app.Shield.BanStatus(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}

	var duration time.Duration
	setCmd := &cobra.Command{
		Use:   "set IDENTITY",
		Short: "Ban an identity for a duration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if !cmd.Flags().Changed("duration") {
					duration = app.Config.Shield.GlobalLimit().Ban
				}
				resp, err := app.Shield.Ban(ctx, args[0], duration)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
	setCmd.Flags().DurationVarP(&duration, "duration", "d", 0, "ban duration (default: the global ban duration)")

	clearCmd := &cobra.Command{
		Use:     "clear IDENTITY",
		Aliases: []string{"lift"},
		Short:   "Remove the ban of an identity",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if err := app.Shield.LiftBan(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ban of %s cleared\n", args[0])
				return nil
			})
		},
	}

	banCmd.AddCommand(statusCmd, setCmd, clearCmd)
	return banCmd
}
