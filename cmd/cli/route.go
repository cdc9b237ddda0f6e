package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/apishield/internal/application/dto"
	"github.com/turtacn/apishield/internal/domain/service"
)

type ruleIssueOutput struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
	Error string `json:"error"`
	Fatal bool   `json:"fatal"`
}

func newRouteCmd(opts *rootOptions) *cobra.Command {
	routeCmd := &cobra.Command{
		Use:   "route",
		Short: "Explain the configured route table",
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve PATH...",
		Short: "Show which limit applies to each path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			resolver := service.NewRouteResolver(nil)
			global, rules := cfg.Shield.GlobalLimit(), cfg.Shield.Rules()
			out := make([]*dto.ResolveResponse, 0, len(args))
			for _, path := range args {
				out = append(out, dto.NewResolveResponse(path, resolver.Resolve(path, global, rules)))
			}
			return printJSON(cmd, out)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Report route rules that will never match",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			issues := cfg.RuleIssues()
			out := make([]ruleIssueOutput, 0, len(issues))
			for _, issue := range issues {
				out = append(out, ruleIssueOutput{Index: issue.Index, Path: issue.Path, Error: issue.Err.Error(), Fatal: issue.Fatal})
			}
			if err := printJSON(cmd, out); err != nil {
				return err
			}
			if len(out) > 0 {
				return fmt.Errorf("%d route rule(s) have problems", len(out))
			}
			return nil
		},
	}

	routeCmd.AddCommand(resolveCmd, checkCmd)
	return routeCmd
}
