package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cgm-alerts/internal/gate"
	"cgm-alerts/internal/logging"
	"cgm-alerts/internal/mute"
	"cgm-alerts/internal/storage"
)

// Recipients lists the chats that receive alerts.
type Recipients interface {
	Subscribers() []storage.Subscriber
}

// Report summarises one dispatch.
type Report struct {
	Recipients int
	Delivered  int
	Muted      int
	Failed     int
}

// Dispatcher fans an alert out to every subscriber not muted for it.
type Dispatcher struct {
	recipients   Recipients
	mutes        *mute.Registry
	sender       Sender
	ruleOverride bool
	logger       zerolog.Logger
}

// NewDispatcher constructs a Dispatcher. When ruleOverride is set rule alerts
// reach muted users too.
func NewDispatcher(recipients Recipients, mutes *mute.Registry, sender Sender, ruleOverride bool, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		recipients:   recipients,
		mutes:        mutes,
		sender:       sender,
		ruleOverride: ruleOverride,
		logger:       logging.Component(logger, "alert_dispatcher"),
	}
}

// Dispatch delivers alert with the mute footer. A failed delivery is logged
// and does not stop the remaining recipients.
func (d *Dispatcher) Dispatch(ctx context.Context, alert gate.Alert, now time.Time) Report {
	subs := d.recipients.Subscribers()
	report := Report{Recipients: len(subs)}
	text := WithMuteFooter(alert.Message)

	for _, sub := range subs {
		if d.skip(alert.Channel, sub.Username, now) {
			report.Muted++
			d.logger.Debug().Str("username", sub.Username).Str("channel", string(alert.Channel)).Msg("recipient muted")
			continue
		}
		if err := d.sender.Send(ctx, sub.ChatID, text); err != nil {
			report.Failed++
			d.logger.Error().Err(err).Str("username", sub.Username).Int64("chat_id", sub.ChatID).Msg("alert delivery failed")
			continue
		}
		report.Delivered++
	}

	d.logger.Info().
		Str("channel", string(alert.Channel)).
		Str("rule", alert.Rule).
		Int("recipients", report.Recipients).
		Int("delivered", report.Delivered).
		Int("muted", report.Muted).
		Int("failed", report.Failed).
		Msg("alert dispatched")
	return report
}

func (d *Dispatcher) skip(channel gate.Channel, username string, now time.Time) bool {
	if d.mutes == nil {
		return false
	}
	if channel == gate.ChannelRule && d.ruleOverride {
		return false
	}
	return d.mutes.IsMuted(username, now)
}
