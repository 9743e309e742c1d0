package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/rs/zerolog"

	"cgm-alerts/internal/logging"
)

// DefaultTelegramAPI is the public Bot API endpoint.
const DefaultTelegramAPI = "https://api.telegram.org"

// Sender delivers a text message to one chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// TelegramOptions configure the Telegram client.
type TelegramOptions struct {
	BotToken string
	APIBase  string
	// Extra options, e.g. the command bot's default handler.
	Options []tgbot.Option
}

// NewTelegramClient builds a go-telegram client without calling getMe, so
// construction never touches the network.
func NewTelegramClient(opts TelegramOptions) (*tgbot.Bot, error) {
	if strings.TrimSpace(opts.BotToken) == "" {
		return nil, errors.New("telegram bot token is required")
	}
	base := strings.TrimRight(opts.APIBase, "/")
	if base == "" {
		base = DefaultTelegramAPI
	}

	options := []tgbot.Option{
		tgbot.WithSkipGetMe(),
		tgbot.WithServerURL(base),
	}
	options = append(options, opts.Options...)

	client, err := tgbot.New(opts.BotToken, options...)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return client, nil
}

// TelegramSender pushes messages through the Bot API sendMessage call.
type TelegramSender struct {
	client  *tgbot.Bot
	timeout time.Duration
	logger  zerolog.Logger
}

// NewTelegramSender wraps an initialised client. Each send is bounded by timeout.
func NewTelegramSender(client *tgbot.Bot, timeout time.Duration, logger zerolog.Logger) *TelegramSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramSender{
		client:  client,
		timeout: timeout,
		logger:  logging.Component(logger, "alert_telegram"),
	}
}

// Send posts text to chatID.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	if s.client == nil {
		return errors.New("telegram client is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("telegram send returned empty message id")
	}

	s.logger.Debug().Int64("chat_id", chatID).Int("message_id", sent.ID).Msg("message delivered")
	return nil
}

var _ Sender = (*TelegramSender)(nil)
