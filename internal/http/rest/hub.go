package rest

import (
	"context"
	"sync"

	"github.com/italolelis/media_relay/internal/job"
	"github.com/italolelis/media_relay/internal/progress"
)

const (
	subscriberBuffer = 32

	eventProgress = "progress"
	eventMessage  = "message"
)

// Event is what websocket subscribers receive for a job.
type Event struct {
	Type       string  `json:"type"`
	Phase      string  `json:"phase,omitempty"`
	Kind       string  `json:"kind,omitempty"`
	Text       string  `json:"text"`
	BytesDone  int64   `json:"bytes_done,omitempty"`
	BytesTotal int64   `json:"bytes_total,omitempty"`
	RateBps    float64 `json:"rate_bps,omitempty"`
	ETASeconds int64   `json:"eta_seconds,omitempty"`
}

// Hub fans job updates out to the websocket subscribers of a requester. It
// is the presenter for requesters that came in over HTTP.
type Hub struct {
	mu   sync.Mutex
	subs map[job.RequesterID]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[job.RequesterID]map[chan Event]struct{})}
}

func (h *Hub) RendererFor(r job.Requester) progress.Renderer {
	return &hubRenderer{hub: h, requester: r.ID}
}

func (h *Hub) subscribe(id job.RequesterID) chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)

	if h.subs[id] == nil {
		h.subs[id] = make(map[chan Event]struct{})
	}

	h.subs[id][ch] = struct{}{}

	return ch
}

func (h *Hub) unsubscribe(id job.RequesterID, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs[id], ch)

	if len(h.subs[id]) == 0 {
		delete(h.subs, id)
	}
}

// publish never blocks. A subscriber that cannot keep up misses progress
// events; a message still gets in by evicting the oldest queued progress
// event, or the oldest message when nothing else is queued.
func (h *Hub) publish(id job.RequesterID, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[id] {
		select {
		case ch <- ev:
			continue
		default:
		}

		if ev.Type == eventProgress {
			continue
		}

		makeRoom(ch)

		select {
		case ch <- ev:
		default:
		}
	}
}

// makeRoom removes one queued event from ch, preferring progress. Callers
// hold the hub lock, so nothing else sends to ch meanwhile.
func makeRoom(ch chan Event) {
	queued := make([]Event, 0, len(ch))

	for n := len(ch); n > 0; n-- {
		select {
		case e := <-ch:
			queued = append(queued, e)
		default:
		}
	}

	drop := 0

	for i, e := range queued {
		if e.Type == eventProgress {
			drop = i
			break
		}
	}

	for i, e := range queued {
		if i != drop {
			ch <- e
		}
	}
}

type hubRenderer struct {
	hub       *Hub
	requester job.RequesterID
}

func (r *hubRenderer) RenderProgress(_ context.Context, u progress.Update) error {
	p := u.Progress

	r.hub.publish(r.requester, Event{
		Type:       eventProgress,
		Phase:      string(u.Phase),
		Text:       progress.Format(u),
		BytesDone:  p.BytesDone,
		BytesTotal: p.BytesTotal,
		RateBps:    p.RateBps,
		ETASeconds: p.ETASeconds,
	})

	return nil
}

func (r *hubRenderer) RenderMessage(_ context.Context, m progress.Message) error {
	r.hub.publish(r.requester, Event{Type: eventMessage, Kind: m.Kind.String(), Text: m.Text})

	return nil
}
