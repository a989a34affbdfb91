// Package dispatch fans a composed message out to every active recipient.
package dispatch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zkdrop/dropbot/internal/config"
	"github.com/zkdrop/dropbot/internal/resilience"
)

// Messenger sends one message to one chat.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Directory is the recipient slice of the store the engine needs.
type Directory interface {
	ListActiveRecipients(ctx context.Context) ([]int64, error)
	MarkRecipientUnreachable(ctx context.Context, chatID int64) error
}

// Outcome summarizes one broadcast round.
type Outcome struct {
	Sent    int
	Failed  int
	Dropped int // recipients marked unreachable this round
}

// Engine broadcasts messages with pacing and per-recipient failure isolation.
// One blocked or deleted chat never aborts the rest of the round.
type Engine struct {
	msgr        Messenger
	dir         Directory
	limiter     *rate.Limiter
	adminChatID int64
}

// New creates an Engine. Pacing comes from cfg.SendPauseMS; Telegram caps
// bots at about 30 messages per second, the default 150ms pause stays well
// under that with headroom for retries.
func New(msgr Messenger, dir Directory, cfg config.DispatchConfig, adminChatID int64) *Engine {
	pause := time.Duration(cfg.SendPauseMS) * time.Millisecond
	if pause <= 0 {
		pause = 150 * time.Millisecond
	}
	return &Engine{
		msgr:        msgr,
		dir:         dir,
		limiter:     rate.NewLimiter(rate.Every(pause), 1),
		adminChatID: adminChatID,
	}
}

// Broadcast sends text to every active recipient. A permanent failure (bot
// blocked, chat gone) drops the recipient from future rounds; a transient
// failure is counted and skipped. Context cancellation stops the round.
func (e *Engine) Broadcast(ctx context.Context, text string) (Outcome, error) {
	var out Outcome

	recipients, err := e.dir.ListActiveRecipients(ctx)
	if err != nil {
		return out, eris.Wrap(err, "dispatch: list recipients")
	}

	for _, chatID := range recipients {
		if err := e.limiter.Wait(ctx); err != nil {
			return out, eris.Wrap(err, "dispatch: pacing wait")
		}

		if err := e.msgr.Send(ctx, chatID, text); err != nil {
			out.Failed++
			if resilience.IsPermanent(err) {
				if dropErr := e.dir.MarkRecipientUnreachable(ctx, chatID); dropErr != nil {
					zap.L().Error("dispatch: drop unreachable recipient",
						zap.Int64("chat_id", chatID), zap.Error(dropErr))
				} else {
					out.Dropped++
				}
				zap.L().Info("dispatch: recipient unreachable, dropped",
					zap.Int64("chat_id", chatID), zap.Error(err))
				continue
			}
			zap.L().Warn("dispatch: send failed",
				zap.Int64("chat_id", chatID), zap.Error(err))
			continue
		}
		out.Sent++
	}

	return out, nil
}

// SendAdmin delivers an operational message to the admin chat, if configured.
func (e *Engine) SendAdmin(ctx context.Context, text string) error {
	if e.adminChatID == 0 {
		return nil
	}
	return eris.Wrap(e.msgr.Send(ctx, e.adminChatID, text), "dispatch: send admin")
}
