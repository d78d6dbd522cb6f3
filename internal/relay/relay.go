// Package relay defines the remote endpoint a finished job is delivered to.
package relay

import (
	"context"
	"errors"
	"io"
	"net/url"
)

// Relay delivers media to a remote endpoint either by handing it a location
// to fetch on its own, or by ingesting a byte stream.
type Relay interface {
	// RelayURL asks the endpoint to fetch location itself.
	RelayURL(ctx context.Context, target string, location *url.URL) error
	// OpenSink starts a streaming upload of name. size is a hint, 0 if unknown.
	OpenSink(ctx context.Context, target, name string, size int64) (Sink, error)
}

// Sink receives an upload. Close commits it and returns the endpoint's
// verdict; Abort discards it. Exactly one of them must be called.
type Sink interface {
	io.Writer
	Close() error
	Abort(cause error)
}

var errUploadReturned = errors.New("upload finished before the stream ended")

// PipeSink adapts a reader-consuming upload call into a Sink. The upload
// runs on its own goroutine and reads what is written to the sink. When ctx
// ends first, pending and later writes fail with the context's cause, and
// Close and Abort stop waiting for the upload.
type PipeSink struct {
	ctx  context.Context
	pw   *io.PipeWriter
	done chan struct{}
	err  error
}

func NewPipeSink(ctx context.Context, upload func(ctx context.Context, r io.Reader) error) *PipeSink {
	pr, pw := io.Pipe()
	s := &PipeSink{ctx: ctx, pw: pw, done: make(chan struct{})}

	go func() {
		defer close(s.done)

		err := upload(ctx, pr)
		if err != nil {
			pr.CloseWithError(err)
		} else {
			pr.CloseWithError(errUploadReturned)
		}

		s.err = err
	}()

	go func() {
		select {
		case <-ctx.Done():
			pr.CloseWithError(context.Cause(ctx))
		case <-s.done:
		}
	}()

	return s
}

func (s *PipeSink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

// Close ends the stream and waits for the upload result.
func (s *PipeSink) Close() error {
	s.pw.Close()

	return s.wait()
}

// Abort fails the stream with cause and waits for the upload to unwind.
func (s *PipeSink) Abort(cause error) {
	if cause == nil {
		cause = io.ErrClosedPipe
	}

	s.pw.CloseWithError(cause)
	_ = s.wait()
}

func (s *PipeSink) wait() error {
	select {
	case <-s.done:
		return s.err
	default:
	}

	select {
	case <-s.done:
		return s.err
	case <-s.ctx.Done():
		return context.Cause(s.ctx)
	}
}
