package relay

import (
	"context"
	"net/url"

	"github.com/italolelis/media_relay/internal/telemetry"
)

// InstrumentedRelay wraps a Relay with telemetry.
type InstrumentedRelay struct {
	relay     Relay
	telemetry *telemetry.Telemetry
	relayType string
}

func NewInstrumentedRelay(r Relay, tel *telemetry.Telemetry, relayType string) *InstrumentedRelay {
	return &InstrumentedRelay{relay: r, telemetry: tel, relayType: relayType}
}

func (r *InstrumentedRelay) RelayURL(ctx context.Context, target string, location *url.URL) error {
	return r.telemetry.InstrumentRelayOperation(ctx, r.relayType, "relay_url", func(ctx context.Context) error {
		return r.relay.RelayURL(ctx, target, location)
	})
}

func (r *InstrumentedRelay) OpenSink(ctx context.Context, target, name string, size int64) (Sink, error) {
	var sink Sink

	err := r.telemetry.InstrumentRelayOperation(ctx, r.relayType, "open_sink", func(ctx context.Context) error {
		var err error
		sink, err = r.relay.OpenSink(ctx, target, name, size)

		return err
	})
	if err != nil {
		return nil, err
	}

	return &instrumentedSink{Sink: sink, relay: r}, nil
}

// instrumentedSink records the upload outcome when the stream ends.
type instrumentedSink struct {
	Sink
	relay *InstrumentedRelay
}

func (s *instrumentedSink) Close() error {
	err := s.Sink.Close()

	status := "success"
	if err != nil {
		status = "error"
	}

	s.relay.telemetry.RecordRelayOperation(s.relay.relayType, "upload", status)

	return err
}

func (s *instrumentedSink) Abort(cause error) {
	s.Sink.Abort(cause)
	s.relay.telemetry.RecordRelayOperation(s.relay.relayType, "upload", "aborted")
}
