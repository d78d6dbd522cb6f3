package relay

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/italolelis/media_relay/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeSink_Close(t *testing.T) {
	var got []byte

	s := NewPipeSink(context.Background(), func(_ context.Context, r io.Reader) error {
		var err error
		got, err = io.ReadAll(r)

		return err
	})

	_, err := s.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = s.Write([]byte("world"))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.Equal(t, "hello world", string(got))
}

func TestPipeSink_UploadFailureSurfacesOnWrite(t *testing.T) {
	boom := errors.New("413 request entity too large")

	s := NewPipeSink(context.Background(), func(_ context.Context, r io.Reader) error {
		buf := make([]byte, 2)
		_, _ = r.Read(buf)

		return boom
	})

	var err error
	for i := 0; i < 10 && err == nil; i++ {
		_, err = s.Write([]byte("data"))
	}

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Close(), boom)
}

func TestPipeSink_Abort(t *testing.T) {
	cancelled := errors.New("cancelled by user")
	seen := make(chan error, 1)

	s := NewPipeSink(context.Background(), func(_ context.Context, r io.Reader) error {
		_, err := io.ReadAll(r)
		seen <- err

		return err
	})

	_, err := s.Write([]byte("partial"))
	require.NoError(t, err)

	s.Abort(cancelled)
	assert.ErrorIs(t, <-seen, cancelled)
}

func TestPipeSink_EarlyReturnFailsWrites(t *testing.T) {
	s := NewPipeSink(context.Background(), func(context.Context, io.Reader) error { return nil })

	require.NoError(t, s.Close())

	_, err := s.Write([]byte("late"))
	assert.Error(t, err)
}

func TestPipeSink_ContextEndUnblocksStalledUpload(t *testing.T) {
	stalled := make(chan struct{})
	t.Cleanup(func() { close(stalled) })

	ctx, cancel := context.WithCancelCause(context.Background())
	cancelled := errors.New("cancelled by user")

	s := NewPipeSink(ctx, func(context.Context, io.Reader) error {
		<-stalled
		return nil
	})

	written := make(chan error, 1)
	go func() {
		_, err := s.Write([]byte("never read"))
		written <- err
	}()

	cancel(cancelled)

	select {
	case err := <-written:
		assert.ErrorIs(t, err, cancelled)
	case <-time.After(time.Second):
		t.Fatal("write still blocked after the context ended")
	}

	aborted := make(chan struct{})
	go func() {
		s.Abort(cancelled)
		close(aborted)
	}()

	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("abort waited for a stalled upload")
	}

	_, err := s.Write([]byte("late"))
	assert.Error(t, err)
}

func TestErrors(t *testing.T) {
	inner := errors.New("inner")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "network with status",
			err:  &NetworkError{Operation: "upload", StatusCode: 503, APIMessage: "service unavailable", Err: inner},
			want: "network error during upload (HTTP 503): service unavailable",
		},
		{
			name: "network without status",
			err:  &NetworkError{Operation: "relay_url", APIMessage: "connection timeout", Err: inner},
			want: "network error during relay_url: connection timeout",
		},
		{
			name: "authentication",
			err:  &AuthenticationError{Operation: "upload", Err: inner},
			want: "authentication failed during upload",
		},
		{
			name: "destination",
			err:  &DestinationError{Target: "Videos", Reason: "folder not found", Err: inner},
			want: "destination error for 'Videos': folder not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, inner)
		})
	}
}

type stubRelay struct {
	relayErr error
	sink     Sink
}

func (s *stubRelay) RelayURL(context.Context, string, *url.URL) error { return s.relayErr }

func (s *stubRelay) OpenSink(context.Context, string, string, int64) (Sink, error) {
	return s.sink, nil
}

type memSink struct {
	data    []byte
	closed  bool
	aborted error
}

func (m *memSink) Write(p []byte) (int, error) { m.data = append(m.data, p...); return len(p), nil }
func (m *memSink) Close() error                { m.closed = true; return nil }
func (m *memSink) Abort(err error)             { m.aborted = err }

func TestInstrumentedRelay(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Config{Enabled: false})
	require.NoError(t, err)

	boom := errors.New("refused")
	sink := &memSink{}
	r := NewInstrumentedRelay(&stubRelay{relayErr: boom, sink: sink}, tel, "stub")

	assert.ErrorIs(t, r.RelayURL(context.Background(), "1", &url.URL{Scheme: "https", Host: "cdn"}), boom)

	s, err := r.OpenSink(context.Background(), "1", "clip.mp4", 3)
	require.NoError(t, err)

	_, err = s.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.True(t, sink.closed)
	assert.Equal(t, "abc", string(sink.data))

	s, err = r.OpenSink(context.Background(), "1", "clip.mp4", 3)
	require.NoError(t, err)
	s.Abort(boom)
	assert.ErrorIs(t, sink.aborted, boom)
}
