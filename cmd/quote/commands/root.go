package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"speedliner/internal/usecase"
	"speedliner/pkg/logger"
)

var (
	routesFile string
	registry   *usecase.RouteRegistry
)

func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the offline quote CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "speedliner-quote",
		Short:        "Offline courier quotes from a route document",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(routesFile)
			if err != nil {
				return fmt.Errorf("read routes: %w", err)
			}
			registry = usecase.NewRouteRegistry(logger.Nop())
			res, err := registry.ReplaceJSON(raw)
			if err != nil {
				return err
			}
			if res.Rejected > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d invalid route entries\n", res.Rejected)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&routesFile, "routes", "r", "routes.json", "route document (JSON array)")

	root.AddCommand(calcCmd(), routesCmd())
	return root
}
