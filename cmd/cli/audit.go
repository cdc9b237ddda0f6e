package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/apishield/internal/bootstrap"
	"github.com/turtacn/apishield/internal/infrastructure/audit"
)

var errNoDatabase = errors.New("audit commands need a postgres or sqlite storage driver")

func newAuditCmd(opts *rootOptions) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Work with archived attempt records",
	}

	var limit int
	recentCmd := &cobra.Command{
		Use:   "recent IDENTITY",
		Short: "List the latest archived attempts of an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				sink, err := gormSink(app)
				if err != nil {
					return err
				}
				entries, err := sink.Recent(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd, entries)
			})
		},
	}
	recentCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of attempts")

	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Consume the Kafka attempt topic into the database until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				kafkaCfg := app.Config.Audit.Kafka
				if len(kafkaCfg.Brokers) == 0 || kafkaCfg.Topic == "" {
					return errors.New("audit.kafka.brokers and audit.kafka.topic are required")
				}
				sink, err := gormSink(app)
				if err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				archiver := audit.NewArchiver(kafkaCfg, sink, app.Config.Audit.HMACSecret, app.Logger)
				defer archiver.Close()
				stats, err := archiver.Run(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, stats)
			})
		},
	}

	auditCmd.AddCommand(recentCmd, archiveCmd)
	return auditCmd
}

func gormSink(app *bootstrap.App) (*audit.GormSink, error) {
	if app.Storage.DB == nil {
		return nil, errNoDatabase
	}
	return audit.NewGormSink(app.Storage.DB)
}
