// Package bot is the Telegram front end: every incoming message is fed
// through the Responder, every engine component talks back through
// SendToDevice.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Bot wraps the telegram bot with handlers.
type Bot struct {
	bot  *tgbot.Bot
	resp *Responder
	log  *slog.Logger
}

// New creates the bot. The Responder is attached later with SetResponder
// because the engine components it wraps need the bot as their Messenger.
func New(token string, log *slog.Logger) (*Bot, error) {
	b := &Bot{log: log}

	opts := []tgbot.Option{
		tgbot.WithDefaultHandler(b.defaultHandler),
	}

	tg, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	b.bot = tg

	tg.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, b.startHandler)
	tg.RegisterHandler(tgbot.HandlerTypeMessageText, "/start ", tgbot.MatchTypePrefix, b.startHandler)

	return b, nil
}

func (b *Bot) SetResponder(resp *Responder) {
	b.resp = resp
}

// Start starts the bot polling. Blocks until ctx is canceled.
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// SendToDevice delivers a message to a paired device.
func (b *Bot) SendToDevice(ctx context.Context, deviceID int64, text string) error {
	_, err := b.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: deviceID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (b *Bot) startHandler(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	if update.Message == nil || b.resp == nil {
		return
	}
	b.resp.HandlePaired(ctx, update.Message.From.ID)
}

func (b *Bot) defaultHandler(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" || b.resp == nil {
		return
	}
	b.resp.Respond(ctx, update.Message.From.ID, update.Message.Text)
}
