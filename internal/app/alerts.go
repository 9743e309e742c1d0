package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"
)

// Alerts prints the most recent audited alerts.
func (a *App) Alerts(ctx context.Context, opts AlertsOptions) error {
	if a.Config.Database.DSN == "" {
		return errors.New("database not configured; cannot list alerts")
	}
	be, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer be.close()

	records, err := be.alerts.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Stdout, "no alerts found")
		return nil
	}

	loc := a.location()
	writer := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time\tChannel\tRule\tValue\tDelivered\tMuted\tMessage")
	for _, rec := range records {
		value := "-"
		if rec.GlucoseValue != nil {
			value = strconv.Itoa(*rec.GlucoseValue)
		}
		rule := rec.Rule
		if rule == "" {
			rule = "-"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			rec.CreatedAt.In(loc).Format(time.RFC3339),
			rec.Channel,
			rule,
			value,
			rec.Delivered,
			rec.Muted,
			sanitizeInline(rec.Message),
		)
	}

	writer.Flush()
	return nil
}
