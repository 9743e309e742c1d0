package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cgm-alerts/internal/render"
)

// Snapshot renders the current window to a PNG chart.
func (a *App) Snapshot(ctx context.Context, opts SnapshotOptions) error {
	if opts.PNGPath == "" {
		return errors.New("png path is required")
	}

	cycle, _, err := a.evaluateOnce(ctx, time.Time{})
	if err != nil {
		return err
	}

	png, err := render.WindowPNG(cycle.Window, a.thresholds(), a.location())
	if err != nil {
		return err
	}
	if err := render.WriteFile(opts.PNGPath, png); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}

	a.Logger.Info().Str("path", opts.PNGPath).Int("readings", cycle.Window.Len()).Msg("chart written")
	fmt.Fprintf(a.Stdout, "wrote %s (%d readings)\n", opts.PNGPath, cycle.Window.Len())
	return nil
}
