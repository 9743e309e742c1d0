package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cgm-alerts/internal/alerting"
	"cgm-alerts/internal/gate"
	"cgm-alerts/internal/glucose"
	"cgm-alerts/internal/rules"
	"cgm-alerts/internal/storage"
)

// SimulateAlert delivers a synthetic alert to every registered subscriber.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	now := time.Now()
	alert, err := a.syntheticAlert(opts, now)
	if err != nil {
		return err
	}

	client, err := a.newTelegramClient()
	if err != nil {
		return err
	}
	if client == nil {
		return errors.New("no alert channel configured")
	}

	be, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer be.close()

	directory, mutes, err := a.loadDirectory(ctx, be)
	if err != nil {
		return err
	}

	sender := alerting.NewTelegramSender(client, a.Config.Alerting.Telegram.Timeout, a.Logger)
	dispatcher := alerting.NewDispatcher(directory, mutes, sender, a.Config.Alerting.RuleOverrideMute, a.Logger)
	report := dispatcher.Dispatch(ctx, alert, now)

	record := storage.AlertRecord{
		EventID:   uuid.New(),
		Channel:   string(alert.Channel),
		Rule:      alert.Rule,
		Message:   alert.Message,
		Delivered: report.Delivered,
		Muted:     report.Muted,
	}
	if alert.Channel == gate.ChannelPoint {
		value := alert.Reading.Value
		record.GlucoseValue = &value
	}
	if _, err := be.alerts.InsertAlert(ctx, record); err != nil {
		a.Logger.Error().Err(err).Msg("failed to persist simulated alert")
	}

	fmt.Fprintf(a.Stdout, "recipients=%d delivered=%d muted=%d failed=%d\n",
		report.Recipients, report.Delivered, report.Muted, report.Failed)
	if report.Failed > 0 {
		return fmt.Errorf("%d deliveries failed", report.Failed)
	}
	return nil
}

func (a *App) syntheticAlert(opts SimulateOptions, now time.Time) (gate.Alert, error) {
	switch opts.Channel {
	case gate.ChannelPoint:
		if opts.Value <= 0 {
			return gate.Alert{}, errors.New("value must be greater than zero")
		}
		reading := glucose.Reading{Timestamp: now.UnixMilli(), Value: opts.Value, Direction: glucose.TrendFlat}
		return gate.Alert{
			Channel: gate.ChannelPoint,
			Reading: reading,
			Message: alerting.ReadingMessage(reading, a.thresholds(), a.location()),
			FiredAt: now,
		}, nil
	case gate.ChannelRule:
		msg, ok := rules.MessageFor(opts.Rule)
		if !ok {
			return gate.Alert{}, fmt.Errorf("unknown rule %q", opts.Rule)
		}
		return gate.Alert{Channel: gate.ChannelRule, Rule: opts.Rule, Message: msg, FiredAt: now}, nil
	default:
		return gate.Alert{}, fmt.Errorf("unknown channel %q", opts.Channel)
	}
}
