// Package progress carries transfer progress and status messages from phase
// workers to the transport that renders them.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/italolelis/media_relay/internal/job"
	"github.com/italolelis/media_relay/internal/logctx"
	"github.com/italolelis/media_relay/internal/transfer"
)

// DefaultInterval is the minimum spacing between two progress renders of a job.
const DefaultInterval = time.Second

// Update is a progress sample for one phase of a job.
type Update struct {
	Phase    job.Phase
	Progress transfer.Progress
}

type MessageKind int

const (
	// Info is an intermediate status line.
	Info MessageKind = iota
	// Prompt asks the requester to confirm or cancel.
	Prompt
	// Result is the terminal outcome of a job.
	Result
)

func (k MessageKind) String() string {
	switch k {
	case Info:
		return "info"
	case Prompt:
		return "prompt"
	case Result:
		return "result"
	default:
		return "unknown"
	}
}

type Message struct {
	Kind MessageKind
	Text string
}

// Renderer draws updates for one requester. Calls for a given job are never
// concurrent.
type Renderer interface {
	RenderProgress(ctx context.Context, u Update) error
	RenderMessage(ctx context.Context, m Message) error
}

type item struct {
	update *Update
	msg    *Message
}

type lane struct {
	ctx      context.Context
	renderer Renderer

	mu     sync.Mutex
	queue  []item
	closed bool
	wake   chan struct{}
}

func (l *lane) push(it item, coalesce bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}

	if n := len(l.queue); coalesce && n > 0 && l.queue[n-1].update != nil {
		l.queue[n-1] = it
	} else {
		l.queue = append(l.queue, it)
	}

	l.signal()

	return true
}

func (l *lane) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Bridge keeps one FIFO lane per job, each drained by its own goroutine.
// Post and Send never block the caller.
type Bridge struct {
	interval time.Duration

	mu    sync.Mutex
	lanes map[string]*lane
	wg    sync.WaitGroup
}

func NewBridge(interval time.Duration) *Bridge {
	if interval < 0 {
		interval = 0
	}

	return &Bridge{interval: interval, lanes: make(map[string]*lane)}
}

// Open starts the lane for jobID. Renders run with a context detached from
// ctx's cancellation so terminal messages survive shutdown.
func (b *Bridge) Open(ctx context.Context, jobID string, r Renderer) {
	l := &lane{
		ctx:      context.WithoutCancel(ctx),
		renderer: r,
		wake:     make(chan struct{}, 1),
	}

	b.mu.Lock()
	if _, exists := b.lanes[jobID]; exists {
		b.mu.Unlock()

		return
	}
	b.lanes[jobID] = l
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.serve(l)
	}()
}

// Post queues a progress update. A newer update replaces a queued one that
// has not been rendered yet.
func (b *Bridge) Post(jobID string, u Update) {
	if l := b.lane(jobID); l != nil {
		l.push(item{update: &u}, true)
	}
}

// Send queues a status message. Messages are never coalesced or dropped
// while the lane is open.
func (b *Bridge) Send(jobID string, m Message) {
	if l := b.lane(jobID); l != nil {
		l.push(item{msg: &m}, false)
	}
}

// Close stops accepting items for jobID; queued items are still rendered.
func (b *Bridge) Close(jobID string) {
	b.mu.Lock()
	l, ok := b.lanes[jobID]
	delete(b.lanes, jobID)
	b.mu.Unlock()

	if !ok {
		return
	}

	l.mu.Lock()
	l.closed = true
	l.signal()
	l.mu.Unlock()
}

// Wait blocks until every lane has drained or ctx is done.
func (b *Bridge) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) lane(jobID string) *lane {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.lanes[jobID]
}

func (b *Bridge) serve(l *lane) {
	logger := logctx.LoggerFromContext(l.ctx)

	var lastProgress time.Time

	for {
		l.mu.Lock()

		if len(l.queue) == 0 {
			closed := l.closed
			l.mu.Unlock()

			if closed {
				return
			}

			<-l.wake

			continue
		}

		head := l.queue[0]

		// A lone progress update waits out the throttle; anything queued behind
		// it, or closing the lane, flushes it right away.
		if head.update != nil && len(l.queue) == 1 && !l.closed {
			if wait := b.interval - time.Since(lastProgress); wait > 0 {
				l.mu.Unlock()

				timer := time.NewTimer(wait)
				select {
				case <-l.wake:
				case <-timer.C:
				}
				timer.Stop()

				continue
			}
		}

		l.queue = l.queue[1:]
		l.mu.Unlock()

		var err error
		if head.update != nil {
			lastProgress = time.Now()
			err = l.renderer.RenderProgress(l.ctx, *head.update)
		} else {
			err = l.renderer.RenderMessage(l.ctx, *head.msg)
		}

		if err != nil && !errors.Is(err, context.Canceled) {
			logger.WarnContext(l.ctx, "failed to render job update", "err", err)
		}
	}
}
