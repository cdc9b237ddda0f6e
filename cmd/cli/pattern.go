package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/apishield/internal/domain/service"
)

type patternOutput struct {
	Pattern     string `json:"pattern"`
	Valid       bool   `json:"valid"`
	Specificity int    `json:"specificity"`
	Path        string `json:"path,omitempty"`
	Matches     *bool  `json:"matches,omitempty"`
}

func newPatternCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pattern PATTERN [PATH]",
		Short: "Validate a route pattern and optionally test it against a path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := service.NewPatternMatcher()
			out := patternOutput{Pattern: args[0], Valid: m.Validate(args[0])}
			if out.Valid {
				out.Specificity = m.Specificity(args[0])
			}
			if len(args) == 2 {
				matches := out.Valid && m.Matches(args[0], args[1])
				out.Path = args[1]
				out.Matches = &matches
			}
			return printJSON(cmd, out)
		},
	}
}
