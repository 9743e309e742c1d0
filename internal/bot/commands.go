// Package bot answers the Telegram chat commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cgm-alerts/internal/alerting"
	"cgm-alerts/internal/auth"
	"cgm-alerts/internal/gate"
	"cgm-alerts/internal/glucose"
	"cgm-alerts/internal/logging"
	"cgm-alerts/internal/mute"
	"cgm-alerts/internal/render"
)

// Snapshot exposes the state of the most recent polling cycle.
type Snapshot interface {
	LastReading() (glucose.Reading, bool)
	LastWindow() (glucose.Window, bool)
}

// Options wire the command handlers.
type Options struct {
	Directory  *auth.Directory
	Mutes      *mute.Registry
	Snapshot   Snapshot
	Thresholds gate.Thresholds
	Location   *time.Location
	Now        func() time.Time
}

// Commands builds the reply to every bot command.
type Commands struct {
	opts   Options
	logger zerolog.Logger
}

// NewCommands constructs the handlers.
func NewCommands(opts Options, logger zerolog.Logger) *Commands {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Commands{
		opts:   opts,
		logger: logging.Component(logger, "bot_commands"),
	}
}

// UseSnapshot sets the cycle state read by /g and /grafico. Call it before
// the bot starts polling.
func (c *Commands) UseSnapshot(s Snapshot) {
	c.opts.Snapshot = s
}

// Start authorises username and registers chatID for alerts.
func (c *Commands) Start(ctx context.Context, username, displayName string, chatID int64) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = username
	}

	if err := c.opts.Directory.Register(ctx, username, chatID); err != nil {
		if errors.Is(err, auth.ErrNotAuthorized) {
			return fmt.Sprintf("Olá, %s! Você não está autorizado a receber os alertas.", name)
		}
		c.logger.Error().Err(err).Str("username", username).Msg("register failed")
		return "Lamentamos, não foi possível concluir a autenticação. Tente novamente mais tarde."
	}
	c.opts.Mutes.Init(auth.Normalize(username))

	c.logger.Info().Str("username", username).Int64("chat_id", chatID).Msg("user registered")
	return fmt.Sprintf("Olá, %s! Você receberá os alertas de glicose.\n%s", name, alerting.HelpText(false))
}

// Glucose describes the last checked reading.
func (c *Commands) Glucose() string {
	if c.opts.Snapshot != nil {
		if r, ok := c.opts.Snapshot.LastReading(); ok {
			return alerting.ReadingMessage(r, c.opts.Thresholds, c.opts.Location)
		}
	}
	return "Lamentamos, mas não encontramos a última aferição.\n" + alerting.HelpText(false)
}

// Mute silences username. The registry receives minutes-1 so the reading
// arriving at the nominal minute is delivered.
func (c *Commands) Mute(username string, minutes int) string {
	if c.opts.Mutes.MuteFor(auth.Normalize(username), minutes-1, c.opts.Now()) {
		return fmt.Sprintf("Voltaremos a avisar em %d minutos.\n%s", minutes, alerting.HelpText(true))
	}
	return "Lamentamos, não foi possível silenciar.\n" + alerting.HelpText(true)
}

// Unmute clears the mute of username.
func (c *Commands) Unmute(username string) string {
	username = auth.Normalize(username)
	if c.opts.Mutes.IsMuted(username, c.opts.Now()) {
		c.opts.Mutes.Unmute(username)
		return "Silenciado removido.\n" + alerting.HelpText(true)
	}
	return "Você não aparenta estar silenciado.\n" + alerting.HelpText(true)
}

// Unknown answers any text that is not a command.
func (c *Commands) Unknown() string {
	return "Não há comandos com essas palavras.\n" + alerting.HelpText(false)
}

// Chart renders the latest window, or returns the text to send instead.
func (c *Commands) Chart() ([]byte, string) {
	if c.opts.Snapshot != nil {
		if w, ok := c.opts.Snapshot.LastWindow(); ok {
			png, err := render.WindowPNG(w, c.opts.Thresholds, c.opts.Location)
			if err == nil {
				return png, ""
			}
			if !errors.Is(err, render.ErrNotEnoughData) {
				c.logger.Error().Err(err).Msg("chart rendering failed")
			}
		}
	}
	return nil, "Lamentamos, ainda não há leituras suficientes para o gráfico."
}
