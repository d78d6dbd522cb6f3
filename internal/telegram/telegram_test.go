package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/italolelis/media_relay/internal/job"
	"github.com/italolelis/media_relay/internal/progress"
	"github.com/italolelis/media_relay/internal/relay"
	"github.com/italolelis/media_relay/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
	sendErr  error
	uploaded []byte

	updates chan tgbotapi.Update
	stopped bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v, ok := c.(tgbotapi.VideoConfig); ok {
		if fr, ok := v.File.(tgbotapi.FileReader); ok {
			f.mu.Unlock()
			data, err := io.ReadAll(fr.Reader)
			f.mu.Lock()

			if err != nil {
				return tgbotapi.Message{}, err
			}

			f.uploaded = data
		}
	}

	f.sent = append(f.sent, c)

	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}

	f.nextID++

	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, c)

	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped = true
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}

	return out
}

type fakeJobs struct {
	mu         sync.Mutex
	submitted  []job.Requester
	urls       []string
	confirmed  []job.RequesterID
	cancelled  []job.RequesterID
	submitErr  error
	confirmErr error
	cancelErr  error
}

func (j *fakeJobs) Submit(_ context.Context, r job.Requester, pageURL string) (job.Snapshot, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.submitted = append(j.submitted, r)
	j.urls = append(j.urls, pageURL)

	return job.Snapshot{RequesterID: r.ID}, j.submitErr
}

func (j *fakeJobs) Confirm(_ context.Context, id job.RequesterID) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.confirmed = append(j.confirmed, id)

	return j.confirmErr
}

func (j *fakeJobs) Cancel(_ context.Context, id job.RequesterID) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.cancelled = append(j.cancelled, id)

	return j.cancelErr
}

func textUpdate(userID, chatID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}

	if len(text) > 0 && text[0] == '/' {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}}
	}

	return tgbotapi.Update{Message: msg}
}

func callbackUpdate(userID, chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 3, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func TestHandleMessage_SubmitsURL(t *testing.T) {
	api := &fakeAPI{}
	jobs := &fakeJobs{}
	b := NewBot(api)

	b.handleUpdate(context.Background(), jobs, textUpdate(7, 99, "  https://site.example.com/watch/1 "))

	require.Len(t, jobs.submitted, 1)
	assert.Equal(t, job.Requester{ID: "tg:7", Origin: Origin, Target: "99"}, jobs.submitted[0])
	assert.Equal(t, "https://site.example.com/watch/1", jobs.urls[0])
	assert.Empty(t, api.texts(), "analysis message comes from the job itself")
}

func TestHandleMessage_Replies(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		jobs   *fakeJobs
		expect string
	}{
		{name: "start", text: "/start", jobs: &fakeJobs{}, expect: msgHelp},
		{name: "not a url", text: "hello", jobs: &fakeJobs{}, expect: msgNotURL},
		{
			name:   "already running",
			text:   "https://site.example.com/watch/2",
			jobs:   &fakeJobs{submitErr: &job.AlreadyRunningError{Requester: "tg:7"}},
			expect: "⏳ You already have a task running. Please wait or /cancel.",
		},
		{
			name:   "cancel without job",
			text:   "/cancel",
			jobs:   &fakeJobs{cancelErr: job.ErrNoActiveJob},
			expect: "❌ You have no running task.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}

			NewBot(api).handleUpdate(context.Background(), tt.jobs, textUpdate(7, 99, tt.text))

			assert.Equal(t, []string{tt.expect}, api.texts())
		})
	}
}

func TestHandleMessage_CancelCommand(t *testing.T) {
	api := &fakeAPI{}
	jobs := &fakeJobs{}

	NewBot(api).handleUpdate(context.Background(), jobs, textUpdate(7, 99, "/cancel"))

	assert.Equal(t, []job.RequesterID{"tg:7"}, jobs.cancelled)
	assert.Empty(t, api.texts())
}

func TestHandleCallback(t *testing.T) {
	api := &fakeAPI{}
	jobs := &fakeJobs{confirmErr: job.ErrNothingToConfirm}
	b := NewBot(api)

	b.handleUpdate(context.Background(), jobs, callbackUpdate(7, 99, dataConfirm))
	b.handleUpdate(context.Background(), jobs, callbackUpdate(7, 99, dataCancel))

	assert.Equal(t, []job.RequesterID{"tg:7"}, jobs.confirmed)
	assert.Equal(t, []job.RequesterID{"tg:7"}, jobs.cancelled)
	assert.Equal(t, []string{"❌ Nothing to confirm right now."}, api.texts())

	require.Len(t, api.requests, 2)
	assert.IsType(t, tgbotapi.CallbackConfig{}, api.requests[0])
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	jobs := &fakeJobs{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- NewBot(api).Run(ctx, jobs) }()

	api.updates <- textUpdate(1, 2, "https://site.example.com/watch/3")
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}

	assert.True(t, api.stopped)
	assert.Len(t, jobs.submitted, 1)
}

func TestRenderer(t *testing.T) {
	api := &fakeAPI{}
	r := NewBot(api).RendererFor(job.Requester{ID: "tg:7", Target: "99"})
	ctx := context.Background()

	require.NoError(t, r.RenderMessage(ctx, progress.Message{Kind: progress.Prompt, Text: "Proceed?"}))
	require.NoError(t, r.RenderMessage(ctx, progress.Message{Kind: progress.Info, Text: "⬇️ Starting download..."}))

	update := progress.Update{Phase: job.PhaseDownload, Progress: transfer.Progress{BytesDone: 50, BytesTotal: 100}}
	require.NoError(t, r.RenderProgress(ctx, update))
	require.NoError(t, r.RenderProgress(ctx, update))
	require.NoError(t, r.RenderMessage(ctx, progress.Message{Kind: progress.Result, Text: "✅ Upload complete."}))

	require.Len(t, api.sent, 3)

	prompt := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, promptKeyboard, prompt.ReplyMarkup)
	assert.Nil(t, api.sent[1].(tgbotapi.MessageConfig).ReplyMarkup)

	require.Len(t, api.requests, 2, "prompt buttons cleared once, duplicate progress skipped")

	clear := api.requests[0].(tgbotapi.EditMessageReplyMarkupConfig)
	assert.Equal(t, 1, clear.MessageID)

	edit := api.requests[1].(tgbotapi.EditMessageTextConfig)
	assert.Equal(t, 2, edit.MessageID, "progress edits the status message")
	assert.Equal(t, progress.Format(update), edit.Text)
}

func TestRenderer_InvalidTarget(t *testing.T) {
	r := NewBot(&fakeAPI{}).RendererFor(job.Requester{ID: "http:alice", Target: "Videos"})

	var destErr *relay.DestinationError
	require.ErrorAs(t, r.RenderMessage(context.Background(), progress.Message{Text: "x"}), &destErr)
}

func TestRelay_RelayURL(t *testing.T) {
	api := &fakeAPI{}
	loc, _ := url.Parse("https://cdn.example.com/v_1080p.mp4")

	require.NoError(t, NewRelay(api).RelayURL(context.Background(), "99", loc))

	require.Len(t, api.sent, 1)
	video := api.sent[0].(tgbotapi.VideoConfig)
	assert.Equal(t, int64(99), video.ChatID)
	assert.Equal(t, tgbotapi.FileURL(loc.String()), video.File)
	assert.True(t, video.SupportsStreaming)
}

func TestRelay_ErrorClassification(t *testing.T) {
	loc, _ := url.Parse("https://cdn.example.com/v.mp4")

	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "unauthorized",
			err:  &tgbotapi.Error{Code: 401, Message: "Unauthorized"},
			check: func(t *testing.T, err error) {
				var authErr *relay.AuthenticationError
				assert.ErrorAs(t, err, &authErr)
			},
		},
		{
			name: "chat not found",
			err:  &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"},
			check: func(t *testing.T, err error) {
				var destErr *relay.DestinationError
				require.ErrorAs(t, err, &destErr)
				assert.Equal(t, "99", destErr.Target)
			},
		},
		{
			name: "bad url",
			err:  &tgbotapi.Error{Code: 400, Message: "Bad Request: wrong file identifier/HTTP URL specified"},
			check: func(t *testing.T, err error) {
				var netErr *relay.NetworkError
				require.ErrorAs(t, err, &netErr)
				assert.Equal(t, 400, netErr.StatusCode)
			},
		},
		{
			name: "transport",
			err:  errors.New("dial tcp: i/o timeout"),
			check: func(t *testing.T, err error) {
				var netErr *relay.NetworkError
				require.ErrorAs(t, err, &netErr)
				assert.Zero(t, netErr.StatusCode)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{sendErr: tt.err}

			tt.check(t, NewRelay(api).RelayURL(context.Background(), "99", loc))
		})
	}

	var destErr *relay.DestinationError
	assert.ErrorAs(t, NewRelay(&fakeAPI{}).RelayURL(context.Background(), "not-a-chat", loc), &destErr)
}

func TestRelay_OpenSinkStreamsVideo(t *testing.T) {
	api := &fakeAPI{}

	sink, err := NewRelay(api).OpenSink(context.Background(), "99", "clip.mp4", 11)
	require.NoError(t, err)

	_, err = sink.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = sink.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	assert.Equal(t, "hello world", string(api.uploaded))

	require.Len(t, api.sent, 1)
	video := api.sent[0].(tgbotapi.VideoConfig)
	assert.True(t, video.SupportsStreaming)
	assert.Equal(t, "clip.mp4", video.File.(tgbotapi.FileReader).Name)
}

func TestNewBotAPI_BoundsRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/getMe", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"relay","username":"relay_bot"}}`)
	}))
	defer server.Close()

	api, err := NewBotAPI("TOKEN", server.URL+"/bot%s/%s")
	require.NoError(t, err)
	assert.Equal(t, "relay_bot", api.Self.UserName)

	client, ok := api.Client.(*http.Client)
	require.True(t, ok)
	assert.Equal(t, requestTimeout, client.Timeout)
}
