package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"speedliner/internal/domain/models"
	"speedliner/internal/usecase"
)

func calcCmd() *cobra.Command {
	var (
		routeID    string
		volume     string
		collateral string
		express    bool
		asJSON     bool
		note       string
	)

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Price one shipment",
		RunE: func(cmd *cobra.Command, args []string) error {
			var route *models.Route
			if r, ok := registry.Get(routeID); ok {
				route = &r
			}

			q, err := usecase.Calculate(route, volume, collateral, express)
			if err != nil {
				return fmt.Errorf("%s", usecase.RenderError(err))
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(q)
			}

			fmt.Fprintln(out, usecase.RenderQuote(q))
			fmt.Fprintf(out, "Days to complete: %d\n", q.Days)
			if q.BelowMinimum {
				fmt.Fprintf(out, "Note: below the route minimum of %d ISK\n", q.MinReward)
			}
			if express {
				req := usecase.BuildExpressRequest(q, models.Identity{}, note)
				fmt.Fprintf(out, "\n%s\n\n%s", req.Subject, req.Body)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&routeID, "route", "", "route id")
	cmd.Flags().StringVar(&volume, "volume", "", "volume in m³, separators allowed")
	cmd.Flags().StringVar(&collateral, "collateral", "0", "collateral in ISK, separators allowed")
	cmd.Flags().BoolVar(&express, "express", false, "express delivery (+100%)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the quote as JSON")
	cmd.Flags().StringVar(&note, "note", "", "note for the express mail")
	_ = cmd.MarkFlagRequired("route")
	_ = cmd.MarkFlagRequired("volume")
	return cmd
}
