package cli

import (
	"github.com/spf13/cobra"

	"cgm-alerts/internal/app"
)

var snapshotPNG string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Render the current glucose window to a PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Snapshot(cmd.Context(), app.SnapshotOptions{PNGPath: snapshotPNG})
	},
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotPNG, "png", "glucose.png", "Output PNG path")
}
