package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/italolelis/media_relay/internal/job"
	"github.com/italolelis/media_relay/internal/logctx"
	"github.com/italolelis/media_relay/internal/progress"
)

const (
	dataConfirm = "confirm"
	dataCancel  = "cancel"
)

var promptKeyboard = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", dataConfirm),
		tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", dataCancel),
	),
)

// renderer draws one job into its chat. Progress edits the latest status
// message in place; every status message starts a new one.
type renderer struct {
	api    sender
	chatID int64
	err    error

	statusID   int
	statusText string
	promptID   int
}

// RendererFor implements the coordinator presenter for Telegram requesters.
func (b *Bot) RendererFor(r job.Requester) progress.Renderer {
	chatID, err := parseChatID(r.Target)

	return &renderer{api: b.api, chatID: chatID, err: err}
}

func (r *renderer) RenderProgress(_ context.Context, u progress.Update) error {
	if r.err != nil {
		return r.err
	}

	text := progress.Format(u)
	if text == r.statusText {
		return nil
	}

	if r.statusID == 0 {
		sent, err := r.api.Send(tgbotapi.NewMessage(r.chatID, text))
		if err != nil {
			return err
		}

		r.statusID = sent.MessageID
	} else if _, err := r.api.Request(tgbotapi.NewEditMessageText(r.chatID, r.statusID, text)); err != nil && !notModified(err) {
		return err
	}

	r.statusText = text

	return nil
}

func (r *renderer) RenderMessage(ctx context.Context, m progress.Message) error {
	if r.err != nil {
		return r.err
	}

	r.clearPrompt(ctx)

	msg := tgbotapi.NewMessage(r.chatID, m.Text)
	if m.Kind == progress.Prompt {
		msg.ReplyMarkup = promptKeyboard
	}

	sent, err := r.api.Send(msg)
	if err != nil {
		return err
	}

	switch m.Kind {
	case progress.Prompt:
		r.promptID = sent.MessageID
	case progress.Info:
		r.statusID, r.statusText = sent.MessageID, m.Text
	case progress.Result:
		r.statusID, r.statusText = 0, ""
	}

	return nil
}

// clearPrompt removes the buttons of an answered prompt.
func (r *renderer) clearPrompt(ctx context.Context) {
	if r.promptID == 0 {
		return
	}

	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if _, err := r.api.Request(tgbotapi.NewEditMessageReplyMarkup(r.chatID, r.promptID, empty)); err != nil && !notModified(err) {
		logctx.LoggerFromContext(ctx).DebugContext(ctx, "failed to clear prompt buttons", "err", err)
	}

	r.promptID = 0
}

func notModified(err error) bool {
	var apiErr *tgbotapi.Error

	return errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "message is not modified")
}
