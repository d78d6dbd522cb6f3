// Package telegram is the Telegram transport: it turns bot updates into job
// requests, renders job progress into chats and relays media into them.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/italolelis/media_relay/internal/coordinator"
	"github.com/italolelis/media_relay/internal/job"
	"github.com/italolelis/media_relay/internal/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Origin tags requesters coming from Telegram.
const Origin = "telegram"

const (
	updateTimeout = 60
	// bounds every Bot API call, sendVideo uploads included
	requestTimeout = time.Hour

	msgHelp = "📥 Send me a video page URL and I will find the best quality mp4 on it.\n" +
		"I will show what I found and wait for your confirmation.\n\n/cancel stops the running task."
	msgNotURL = "Please send a link starting with http:// or https://"
)

// sender is the part of the Bot API used to talk to chats.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type botAPI interface {
	sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Jobs is what the bot asks of the job coordinator.
type Jobs interface {
	Submit(ctx context.Context, r job.Requester, pageURL string) (job.Snapshot, error)
	Confirm(ctx context.Context, id job.RequesterID) error
	Cancel(ctx context.Context, id job.RequesterID) error
}

// NewBotAPI connects to the Bot API through a traced HTTP client. An empty
// endpoint selects the public Bot API.
func NewBotAPI(token, endpoint string) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   requestTimeout,
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}

	return api, nil
}

type Bot struct {
	api botAPI
}

func NewBot(api botAPI) *Bot {
	return &Bot{api: api}
}

// RequesterID namespaces a Telegram user id.
func RequesterID(userID int64) job.RequesterID {
	return job.RequesterID("tg:" + strconv.FormatInt(userID, 10))
}

// Run long-polls updates until ctx is done.
func (b *Bot) Run(ctx context.Context, jobs Jobs) error {
	logger := logctx.LoggerFromContext(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout

	updates := b.api.GetUpdatesChan(u)

	logger.InfoContext(ctx, "telegram bot started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			logger.InfoContext(ctx, "telegram bot stopped")

			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}

			b.handleUpdate(ctx, jobs, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, jobs Jobs, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, jobs, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil && update.Message.Chat != nil:
		b.handleMessage(ctx, jobs, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, jobs Jobs, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	id := RequesterID(msg.From.ID)
	logger := logctx.LoggerFromContext(ctx).With("requester_id", id)

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			b.reply(ctx, chatID, msgHelp)
		case "cancel":
			if err := jobs.Cancel(ctx, id); err != nil {
				b.replyError(ctx, chatID, err)
			}
		default:
			b.reply(ctx, chatID, msgHelp)
		}

		return
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
		b.reply(ctx, chatID, msgNotURL)
		return
	}

	requester := job.Requester{ID: id, Origin: Origin, Target: strconv.FormatInt(chatID, 10)}

	if _, err := jobs.Submit(ctx, requester, text); err != nil {
		logger.DebugContext(ctx, "request not accepted", "err", err)
		b.replyError(ctx, chatID, err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, jobs Jobs, q *tgbotapi.CallbackQuery) {
	logger := logctx.LoggerFromContext(ctx)

	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		logger.DebugContext(ctx, "failed to answer callback", "err", err)
	}

	if q.From == nil || q.Message == nil {
		return
	}

	id := RequesterID(q.From.ID)

	var err error

	switch q.Data {
	case dataConfirm:
		err = jobs.Confirm(ctx, id)
	case dataCancel:
		err = jobs.Cancel(ctx, id)
	default:
		return
	}

	if err != nil {
		b.replyError(ctx, q.Message.Chat.ID, err)
	}
}

func (b *Bot) replyError(ctx context.Context, chatID int64, err error) {
	prefix := "❌ "

	var running *job.AlreadyRunningError
	if errors.As(err, &running) {
		prefix = "⏳ "
	}

	b.reply(ctx, chatID, prefix+coordinator.DescribeError(err))
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to send telegram message", "chat_id", chatID, "err", err)
	}
}
