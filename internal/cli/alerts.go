package cli

import (
	"github.com/spf13/cobra"

	"cgm-alerts/internal/app"
)

var alertsLimit int

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List recently emitted alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Alerts(cmd.Context(), app.AlertsOptions{Limit: alertsLimit})
	},
}

func init() {
	alertsCmd.Flags().IntVar(&alertsLimit, "limit", 20, "Number of alerts to show")
}
