package bot

import (
	"bytes"
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"cgm-alerts/internal/metrics"
)

var muteCommands = []struct {
	command string
	minutes int
}{
	{"/silencia20", 20},
	{"/silencia40", 40},
	{"/silencia60", 60},
	{"/silencia90", 90},
}

// ClientOptions returns the client options the command bot needs at construction.
func (c *Commands) ClientOptions() []tgbot.Option {
	return []tgbot.Option{tgbot.WithDefaultHandler(c.handleText)}
}

// Register attaches the command handlers to client.
func (c *Commands) Register(client *tgbot.Bot) {
	client.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, c.handleStart)
	client.RegisterHandler(tgbot.HandlerTypeMessageText, "/g", tgbot.MatchTypeExact, c.handleGlucose)
	client.RegisterHandler(tgbot.HandlerTypeMessageText, "/glicose", tgbot.MatchTypeExact, c.handleGlucose)
	client.RegisterHandler(tgbot.HandlerTypeMessageText, "/grafico", tgbot.MatchTypeExact, c.handleChart)
	client.RegisterHandler(tgbot.HandlerTypeMessageText, "/remover_silenciar", tgbot.MatchTypeExact, c.handleUnmute)
	for _, mc := range muteCommands {
		minutes := mc.minutes
		client.RegisterHandler(tgbot.HandlerTypeMessageText, mc.command, tgbot.MatchTypeExact,
			func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
				if update.Message == nil {
					return
				}
				count(mc.command)
				c.reply(ctx, b, update, c.Mute(username(update), minutes))
			})
	}
}

func (c *Commands) handleStart(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	count("/start")
	display := ""
	if update.Message.From != nil {
		display = update.Message.From.FirstName
	}
	c.reply(ctx, b, update, c.Start(ctx, username(update), display, update.Message.Chat.ID))
}

func (c *Commands) handleGlucose(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	count("/glicose")
	c.reply(ctx, b, update, c.Glucose())
}

func (c *Commands) handleUnmute(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	count("/remover_silenciar")
	c.reply(ctx, b, update, c.Unmute(username(update)))
}

func (c *Commands) handleChart(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	count("/grafico")
	png, text := c.Chart()
	if png == nil {
		c.reply(ctx, b, update, text)
		return
	}
	_, err := b.SendPhoto(ctx, &tgbot.SendPhotoParams{
		ChatID: update.Message.Chat.ID,
		Photo:  &models.InputFileUpload{Filename: "grafico.png", Data: bytes.NewReader(png)},
	})
	if err != nil {
		c.logger.Error().Err(err).Int64("chat_id", update.Message.Chat.ID).Msg("send chart failed")
	}
}

func (c *Commands) handleText(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil || strings.TrimSpace(update.Message.Text) == "" {
		return
	}
	count("unknown")
	c.reply(ctx, b, update, c.Unknown())
}

func (c *Commands) reply(ctx context.Context, b *tgbot.Bot, update *models.Update, text string) {
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	})
	if err != nil {
		c.logger.Error().Err(err).Int64("chat_id", update.Message.Chat.ID).Msg("reply failed")
	}
}

func username(update *models.Update) string {
	if update.Message == nil || update.Message.From == nil {
		return ""
	}
	return update.Message.From.Username
}

func count(command string) {
	metrics.CommandsTotal.WithLabelValues(command).Inc()
}
