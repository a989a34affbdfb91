// Package telegram adapts the bot API for broadcast delivery and command
// handling.
package telegram

import (
	"context"
	"errors"
	"net/http"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	"github.com/rotisserie/eris"

	"github.com/zkdrop/dropbot/internal/resilience"
)

// Client wraps a telego bot as a dispatch.Messenger.
type Client struct {
	bot *telego.Bot
}

// NewClient creates a bot client from the token.
func NewClient(token string) (*Client, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, eris.Wrap(err, "telegram: create bot")
	}
	return &Client{bot: bot}, nil
}

// Send delivers one Markdown message with link previews disabled. Failures
// are classified so the dispatch engine can tell a dead chat from a flaky
// network.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		Text:      text,
		ParseMode: telego.ModeMarkdown,
		LinkPreviewOptions: &telego.LinkPreviewOptions{
			IsDisabled: true,
		},
	})
	if err != nil {
		return classifySendError(err, chatID)
	}
	return nil
}

// classifySendError maps bot API errors onto the resilience taxonomy.
// 403 means the user blocked the bot or the chat is gone: permanent.
// 429 and 5xx are worth retrying next round: transient.
func classifySendError(err error, chatID int64) error {
	wrapped := eris.Wrapf(err, "telegram: send to %d", chatID)

	var apiErr *telegoapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.ErrorCode == http.StatusForbidden:
			return resilience.NewPermanentError(wrapped)
		case resilience.IsTransientHTTPStatus(apiErr.ErrorCode):
			return resilience.NewTransientError(wrapped, apiErr.ErrorCode)
		}
		return wrapped
	}

	if resilience.IsTransient(err) {
		return resilience.NewTransientError(wrapped, 0)
	}
	return wrapped
}
