package cli

import (
	"github.com/spf13/cobra"

	"cgm-alerts/internal/app"
	"cgm-alerts/internal/gate"
)

var (
	simulateChannel string
	simulateValue   int
	simulateRule    string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic alert to every registered subscriber",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Channel: gate.Channel(simulateChannel),
			Value:   simulateValue,
			Rule:    simulateRule,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateChannel, "channel", string(gate.ChannelPoint), "Alert channel: point or rule")
	simulateCmd.Flags().IntVar(&simulateValue, "value", 0, "Glucose value in mg/dL for point alerts")
	simulateCmd.Flags().StringVar(&simulateRule, "rule", "", "Rule name for rule alerts")
}
