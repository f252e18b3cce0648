package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"speedliner/internal/usecase"
)

func routesCmd() *cobra.Command {
	var corpID int64

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the routes a corporation can see",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, r := range registry.Visible(corpID) {
				line := fmt.Sprintf("%-6s %s", r.ID, r.OptionLabel())
				if hint := usecase.CollateralHint(r); hint != "" {
					line += "  (" + hint + ")"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&corpID, "corp", 0, "corporation id for whitelist routes")
	return cmd
}
