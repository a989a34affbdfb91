package telegram

import (
	"context"
	"strings"

	"github.com/mymmrac/telego"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/zkdrop/dropbot/internal/model"
)

// Registry is the store slice the poller writes through.
type Registry interface {
	AddRecipient(ctx context.Context, chatID int64, username string) error
	BanRecipient(ctx context.Context, chatID int64) error
	CreateTicket(ctx context.Context, t *model.SupportTicket) error
}

// Sender delivers a plain reply to one chat. *Client satisfies it.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Poller consumes bot updates and maintains the recipient directory.
// /start registers the chat for broadcasts, /stop opts it out, and
// /support files a ticket for the operators.
type Poller struct {
	client       *Client
	out          Sender
	registry     Registry
	autoRegister bool
}

// NewPoller creates a Poller on top of an existing client. When autoRegister
// is false, /start does not subscribe the chat; operators add recipients via
// the CLI instead.
func NewPoller(client *Client, registry Registry, autoRegister bool) *Poller {
	return &Poller{client: client, out: client, registry: registry, autoRegister: autoRegister}
}

// Run consumes updates until ctx is cancelled. It only returns early when
// long polling itself cannot be established.
func (p *Poller) Run(ctx context.Context) error {
	updates, err := p.client.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{telego.MessageUpdates},
	})
	if err != nil {
		return eris.Wrap(err, "telegram: start long polling")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			p.handle(ctx, update)
		}
	}
}

func (p *Poller) handle(ctx context.Context, update telego.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	chatID := msg.Chat.ID
	username := ""
	if msg.From != nil {
		username = msg.From.Username
	}

	cmd, rest := splitCommand(msg.Text)
	switch cmd {
	case "/start":
		if !p.autoRegister {
			p.reply(ctx, chatID, "Registration is closed right now. Ask the operators to add you.")
			return
		}
		if err := p.registry.AddRecipient(ctx, chatID, username); err != nil {
			zap.L().Error("telegram: register recipient", zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
		p.reply(ctx, chatID, "✅ You're in. New vetted airdrops will land here.\nSend /stop anytime to opt out.")

	case "/stop":
		if err := p.registry.BanRecipient(ctx, chatID); err != nil {
			zap.L().Error("telegram: unregister recipient", zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
		p.reply(ctx, chatID, "👋 Unsubscribed. Send /start to come back.")

	case "/support":
		if rest == "" {
			p.reply(ctx, chatID, "Tell us what's wrong: /support <your message>")
			return
		}
		t := &model.SupportTicket{ChatID: chatID, Category: "user", Body: rest}
		if err := p.registry.CreateTicket(ctx, t); err != nil {
			zap.L().Error("telegram: create ticket", zap.Int64("chat_id", chatID), zap.Error(err))
			p.reply(ctx, chatID, "Couldn't file that right now, try again in a bit.")
			return
		}
		p.reply(ctx, chatID, "🎫 Ticket filed ("+t.ID+"). We'll get back to you.")

	case "/help":
		p.reply(ctx, chatID, "Commands:\n/start — subscribe to airdrop alerts\n/stop — unsubscribe\n/support <msg> — reach the operators")
	}
}

func (p *Poller) reply(ctx context.Context, chatID int64, text string) {
	if err := p.out.Send(ctx, chatID, text); err != nil {
		zap.L().Warn("telegram: reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// splitCommand extracts the leading bot command and the remaining text.
// "/start@dropbot hello" yields ("/start", "hello").
func splitCommand(text string) (cmd, rest string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, rest, _ = strings.Cut(text, " ")
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return cmd, strings.TrimSpace(rest)
}
