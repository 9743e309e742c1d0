package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cgm-alerts/internal/app"
)

var checkAt string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate the current window once without sending anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.CheckOptions{}
		if checkAt != "" {
			at, err := time.Parse(time.RFC3339, checkAt)
			if err != nil {
				return fmt.Errorf("invalid --at: %w", err)
			}
			opts.At = at
		}
		return getApp().Check(cmd.Context(), opts)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkAt, "at", "", "Evaluation instant (RFC3339); defaults to now")
}
