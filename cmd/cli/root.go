// Package cli implements shield-admin, the operator tool that works directly
// on the configured shield store.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/apishield/internal/bootstrap"
	"github.com/turtacn/apishield/internal/config"
	"github.com/turtacn/apishield/internal/infrastructure/monitoring"
	"github.com/turtacn/apishield/pkg/logger"
)

type rootOptions struct {
	configFile string
}

// NewRootCmd builds the shield-admin command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "shield-admin",
		Short: "Administer the API shield store.",
		Long: `shield-admin inspects and edits the records kept by the API shield:
bans, request counters and route resolution. It reads the same configuration
as the server and talks to the same storage backend.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to the configuration file")

	rootCmd.AddCommand(
		newBanCmd(opts),
		newSweepCmd(opts),
		newRouteCmd(opts),
		newPatternCmd(),
		newAuditCmd(opts),
	)
	return rootCmd
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.LoadConfig(o.configFile, logger.NewNoopLogger())
}

// withApp opens the configured store for the duration of fn. Logs go to
// stderr so command output stays machine readable.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	logCfg := cfg.Log
	logCfg.Output = "stderr"
	log, err := monitoring.NewZapLogger(logCfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())
	return fn(ctx, app)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
