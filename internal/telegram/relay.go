package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/italolelis/media_relay/internal/logctx"
	"github.com/italolelis/media_relay/internal/relay"
)

// Relay delivers media into a Telegram chat. The relay target is the chat id.
type Relay struct {
	api sender
}

func NewRelay(api sender) *Relay {
	return &Relay{api: api}
}

// RelayURL asks Telegram to fetch location itself and post it as a video.
func (r *Relay) RelayURL(ctx context.Context, target string, location *url.URL) error {
	chatID, err := parseChatID(target)
	if err != nil {
		return err
	}

	video := tgbotapi.NewVideo(chatID, tgbotapi.FileURL(location.String()))
	video.SupportsStreaming = true

	if _, err := r.api.Send(video); err != nil {
		return classify("relay_url", target, err)
	}

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "video sent by url", "chat_id", chatID)

	return nil
}

// OpenSink streams the upload as a multipart video message.
func (r *Relay) OpenSink(ctx context.Context, target, name string, size int64) (relay.Sink, error) {
	chatID, err := parseChatID(target)
	if err != nil {
		return nil, err
	}

	logger := logctx.LoggerFromContext(ctx).With("chat_id", chatID, "filename", name, "size_bytes", size)

	return relay.NewPipeSink(ctx, func(ctx context.Context, body io.Reader) error {
		video := tgbotapi.NewVideo(chatID, tgbotapi.FileReader{Name: name, Reader: body})
		video.SupportsStreaming = true

		if _, err := r.api.Send(video); err != nil {
			return classify("upload", target, err)
		}

		logger.InfoContext(ctx, "video uploaded")

		return nil
	}), nil
}

func parseChatID(target string) (int64, error) {
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return 0, &relay.DestinationError{Target: target, Reason: "not a telegram chat id", Err: err}
	}

	return id, nil
}

// classify maps Bot API failures onto the relay error types.
func classify(operation, target string, err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return &relay.NetworkError{Operation: operation, APIMessage: err.Error(), Err: err}
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized:
		return &relay.AuthenticationError{Operation: operation, Err: err}
	case apiErr.Code == http.StatusForbidden || strings.Contains(strings.ToLower(apiErr.Message), "chat not found"):
		return &relay.DestinationError{Target: target, Reason: apiErr.Message, Err: err}
	default:
		return &relay.NetworkError{
			Operation:  operation,
			StatusCode: apiErr.Code,
			APIMessage: apiErr.Message,
			Err:        fmt.Errorf("telegram api: %w", err),
		}
	}
}
