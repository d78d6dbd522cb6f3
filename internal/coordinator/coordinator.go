// Package coordinator drives jobs through their lifecycle. A single goroutine
// owns every job; phases run on worker goroutines and report back on the
// same event channel.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"sort"
	"time"

	"github.com/italolelis/media_relay/internal/candidate"
	"github.com/italolelis/media_relay/internal/job"
	"github.com/italolelis/media_relay/internal/logctx"
	"github.com/italolelis/media_relay/internal/progress"
	"github.com/italolelis/media_relay/internal/relay"
	"github.com/italolelis/media_relay/internal/telemetry"
	"github.com/italolelis/media_relay/internal/transfer"
)

const (
	defaultExt        = ".mp4"
	finishedQueueSize = 16
)

type Discoverer interface {
	Discover(ctx context.Context, pageURL string) ([]candidate.Candidate, error)
}

type Prober interface {
	Probe(ctx context.Context, c candidate.Candidate) candidate.Verdict
}

// Fetcher opens a candidate through the logged-in session. size is 0 when
// unknown.
type Fetcher interface {
	Fetch(ctx context.Context, location *url.URL) (body io.ReadCloser, size int64, err error)
}

// Presenter hands out the renderer that draws a requester's job.
type Presenter interface {
	RendererFor(r job.Requester) progress.Renderer
}

// Ledger records working files so that a crash does not leak them.
type Ledger interface {
	Track(ctx context.Context, jobID, path string) error
	Untrack(ctx context.Context, path string) error
}

type Config struct {
	WorkDir        string
	WorkFilePrefix string
	PhaseTimeout   time.Duration
}

// Dependencies are the collaborators of a Coordinator. Ledger and Telemetry
// are optional.
type Dependencies struct {
	Registry   *job.Registry
	Bridge     *progress.Bridge
	Engine     *transfer.Engine
	Discoverer Discoverer
	Prober     Prober
	Fetcher    Fetcher
	Relay      relay.Relay
	Presenter  Presenter
	Ledger     Ledger
	Telemetry  *telemetry.Telemetry
}

type Coordinator struct {
	cfg Config
	Dependencies

	events  chan any
	stopped chan struct{}

	// owned by Run
	jobs       map[job.RequesterID]*job.Job
	interrupts map[job.RequesterID]context.CancelCauseFunc
	runCtx     context.Context
	stopping   bool

	// OnJobFinished receives a snapshot of every job that reached a terminal
	// state. Sends never block; snapshots are dropped when nobody reads.
	OnJobFinished chan job.Snapshot
}

func New(cfg Config, deps Dependencies) *Coordinator {
	if cfg.WorkFilePrefix == "" {
		cfg.WorkFilePrefix = "media_relay"
	}

	if deps.Registry == nil {
		deps.Registry = job.NewRegistry()
	}

	if deps.Bridge == nil {
		deps.Bridge = progress.NewBridge(progress.DefaultInterval)
	}

	if deps.Engine == nil {
		deps.Engine = transfer.NewEngine(transfer.DefaultChunkSize)
	}

	return &Coordinator{
		cfg:           cfg,
		Dependencies:  deps,
		events:        make(chan any),
		stopped:       make(chan struct{}),
		jobs:          make(map[job.RequesterID]*job.Job),
		interrupts:    make(map[job.RequesterID]context.CancelCauseFunc),
		OnJobFinished: make(chan job.Snapshot, finishedQueueSize),
	}
}

type submitEvent struct {
	requester job.Requester
	pageURL   string
	reply     chan submitReply
}

type submitReply struct {
	snapshot job.Snapshot
	err      error
}

type confirmEvent struct {
	id    job.RequesterID
	reply chan error
}

type cancelEvent struct {
	id    job.RequesterID
	reply chan error
}

type listEvent struct {
	reply chan []job.Snapshot
}

// phaseDone is the single report of a finished phase worker.
type phaseDone struct {
	requester job.RequesterID
	jobID     string
	phase     job.Phase
	outcome   transfer.Outcome
	err       error

	// set by the analysis phase
	candidate candidate.Candidate
	verdict   candidate.Verdict
}

// Submit starts a job for r. It fails with *job.AlreadyRunningError when r
// already has one.
func (c *Coordinator) Submit(ctx context.Context, r job.Requester, pageURL string) (job.Snapshot, error) {
	reply := make(chan submitReply, 1)
	if err := c.send(ctx, submitEvent{requester: r, pageURL: pageURL, reply: reply}); err != nil {
		return job.Snapshot{}, err
	}

	select {
	case res := <-reply:
		return res.snapshot, res.err
	case <-ctx.Done():
		return job.Snapshot{}, ctx.Err()
	}
}

// Confirm accepts the summary of the job awaiting confirmation for id.
func (c *Coordinator) Confirm(ctx context.Context, id job.RequesterID) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, confirmEvent{id: id, reply: reply}); err != nil {
		return err
	}

	return c.awaitErr(ctx, reply)
}

// Cancel asks the active job of id to stop. A job awaiting confirmation is
// cancelled at once; running phases stop at their next chunk.
func (c *Coordinator) Cancel(ctx context.Context, id job.RequesterID) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, cancelEvent{id: id, reply: reply}); err != nil {
		return err
	}

	return c.awaitErr(ctx, reply)
}

// Jobs lists the active jobs, oldest first.
func (c *Coordinator) Jobs(ctx context.Context) ([]job.Snapshot, error) {
	reply := make(chan []job.Snapshot, 1)
	if err := c.send(ctx, listEvent{reply: reply}); err != nil {
		return nil, err
	}

	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) send(ctx context.Context, ev any) error {
	select {
	case c.events <- ev:
		return nil
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) awaitErr(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled and every job has reached a
// terminal state. Run must be called once.
func (c *Coordinator) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	defer close(c.stopped)

	c.runCtx = ctx
	done := ctx.Done()

	logger.InfoContext(ctx, "job coordinator started")

	for {
		select {
		case <-done:
			done = nil
			c.shutdown()
		case ev := <-c.events:
			c.handle(ev)
		}

		if c.stopping && len(c.jobs) == 0 {
			logger.InfoContext(ctx, "job coordinator stopped")

			return nil
		}
	}
}

func (c *Coordinator) handle(ev any) {
	switch ev := ev.(type) {
	case submitEvent:
		snapshot, err := c.submit(ev.requester, ev.pageURL)
		ev.reply <- submitReply{snapshot: snapshot, err: err}
	case confirmEvent:
		ev.reply <- c.confirm(ev.id)
	case cancelEvent:
		ev.reply <- c.cancel(ev.id)
	case listEvent:
		ev.reply <- c.list()
	case phaseDone:
		c.onPhaseDone(ev)
	}
}

func (c *Coordinator) shutdown() {
	logger := logctx.LoggerFromContext(c.runCtx)

	c.stopping = true

	logger.InfoContext(c.runCtx, "shutting down job coordinator", "active_jobs", len(c.jobs))

	for id, j := range c.jobs {
		c.Registry.RequestCancel(id)

		if j.State == job.StateAwaitingConfirmation && !j.Relaying {
			c.finish(j, job.StateCancelled, ErrShuttingDown, "")
		}
	}
}

func (c *Coordinator) submit(r job.Requester, pageURL string) (job.Snapshot, error) {
	logger := logctx.LoggerFromContext(c.runCtx).With("requester_id", r.ID)

	if c.stopping {
		return job.Snapshot{}, ErrStopped
	}

	if !c.Registry.TryAcquire(r.ID) {
		c.Telemetry.JobRejected(c.runCtx, r.Origin)
		logger.DebugContext(c.runCtx, "request rejected, job already running")

		return job.Snapshot{}, &job.AlreadyRunningError{Requester: r.ID}
	}

	j := job.New(r, pageURL)
	c.jobs[r.ID] = j

	ctx := c.jobContext(j)

	c.Bridge.Open(ctx, j.ID, c.Presenter.RendererFor(r))
	c.Bridge.Send(j.ID, info(msgAnalyzing))
	c.Telemetry.JobStarted(ctx, r.Origin)

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "job started", "page_url", pageURL)

	c.spawn(ctx, j, job.PhaseAnalysis, c.analyze(j.PageURL))

	return j.Snapshot(false), nil
}

func (c *Coordinator) confirm(id job.RequesterID) error {
	j, ok := c.jobs[id]
	if !ok || j.State != job.StateAwaitingConfirmation || j.Relaying || c.stopping {
		return job.ErrNothingToConfirm
	}

	ctx := c.jobContext(j)

	if j.Verdict.FetchableWithoutSession {
		j.Relaying = true
		c.Bridge.Send(j.ID, info(msgRelaying))

		c.spawn(ctx, j, job.PhaseRelay, c.relayDirect(j.Requester.Target, j.Candidate.Location))

		return nil
	}

	c.startDownload(j)

	return nil
}

func (c *Coordinator) cancel(id job.RequesterID) error {
	j, ok := c.jobs[id]
	if !ok {
		return job.ErrNoActiveJob
	}

	if j.State == job.StateAwaitingConfirmation && !j.Relaying {
		c.finish(j, job.StateCancelled, job.ErrCancelledByUser, "")

		return nil
	}

	c.Registry.RequestCancel(id)

	if stop, ok := c.interrupts[id]; ok {
		stop(job.ErrCancelledByUser)
	}

	c.Bridge.Send(j.ID, info(msgCancelRequested))

	return nil
}

func (c *Coordinator) list() []job.Snapshot {
	out := make([]job.Snapshot, 0, len(c.jobs))
	for id, j := range c.jobs {
		out = append(out, j.Snapshot(c.Registry.IsCancelled(id)))
	}

	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })

	return out
}

func (c *Coordinator) onPhaseDone(ev phaseDone) {
	j, ok := c.jobs[ev.requester]
	if !ok || j.ID != ev.jobID {
		return
	}

	c.releaseInterrupt(ev.requester)

	switch ev.phase {
	case job.PhaseAnalysis:
		c.analyzed(j, ev)
	case job.PhaseRelay:
		c.relayed(j, ev)
	case job.PhaseDownload:
		c.downloaded(j, ev)
	case job.PhaseUpload:
		c.uploaded(j, ev)
	}
}

func (c *Coordinator) analyzed(j *job.Job, ev phaseDone) {
	if cause := c.cancelCause(j); cause != nil {
		c.finish(j, job.StateCancelled, cause, "")
		return
	}

	if ev.err != nil {
		c.finish(j, job.StateFailed, ev.err, "")
		return
	}

	best := ev.candidate
	j.Candidate = &best
	j.Verdict = ev.verdict

	if err := j.Transition(job.StateAwaitingConfirmation); err != nil {
		c.finish(j, job.StateFailed, err, "")
		return
	}

	c.Bridge.Send(j.ID, summary(j))
}

func (c *Coordinator) relayed(j *job.Job, ev phaseDone) {
	ctx := c.jobContext(j)
	logger := logctx.LoggerFromContext(ctx)

	j.Relaying = false

	if ev.err == nil {
		c.Telemetry.RecordDirectRelay(ctx, "success")
		c.finish(j, job.StateCompleted, nil, msgRelayed)

		return
	}

	c.Telemetry.RecordDirectRelay(ctx, "fallback")
	logger.WarnContext(ctx, "direct relay failed, falling back to download", "err", ev.err)

	if cause := c.cancelCause(j); cause != nil {
		c.finish(j, job.StateCancelled, cause, "")
		return
	}

	c.Bridge.Send(j.ID, relayFallback(ev.err))
	c.startDownload(j)
}

func (c *Coordinator) startDownload(j *job.Job) {
	ctx := c.jobContext(j)

	if err := j.Transition(job.StateDownloading); err != nil {
		c.finish(j, job.StateFailed, err, "")
		return
	}

	ext := path.Ext(j.Candidate.Location.Path)
	if ext == "" {
		ext = defaultExt
	}

	f, err := os.CreateTemp(c.cfg.WorkDir, c.cfg.WorkFilePrefix+"-*"+ext)
	if err != nil {
		c.finish(j, job.StateFailed, &job.TransferError{Phase: job.PhaseDownload, Err: err}, "")
		return
	}

	j.WorkingFile = f.Name()

	if c.Ledger != nil {
		if err := c.Ledger.Track(ctx, j.ID, j.WorkingFile); err != nil {
			logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to track working file", "path", j.WorkingFile, "err", err)
		}
	}

	c.Bridge.Send(j.ID, info(msgStartDownload))
	c.spawn(c.interruptible(j), j, job.PhaseDownload, c.download(j.ID, j.Requester.ID, j.Candidate.Location, f))
}

func (c *Coordinator) downloaded(j *job.Job, ev phaseDone) {
	switch ev.outcome {
	case transfer.Completed:
		if err := j.Transition(job.StateUploading); err != nil {
			c.finish(j, job.StateFailed, err, "")
			return
		}

		c.Bridge.Send(j.ID, info(msgStartUpload))
		c.spawn(c.interruptible(j), j, job.PhaseUpload,
			c.upload(j.ID, j.Requester, uploadName(j), j.WorkingFile))
	case transfer.Cancelled:
		c.finish(j, job.StateCancelled, ev.err, "")
	default:
		c.finish(j, job.StateFailed, ev.err, "")
	}
}

func (c *Coordinator) uploaded(j *job.Job, ev phaseDone) {
	switch ev.outcome {
	case transfer.Completed:
		c.finish(j, job.StateCompleted, nil, msgUploaded)
	case transfer.Cancelled:
		c.finish(j, job.StateCancelled, ev.err, "")
	default:
		c.finish(j, job.StateFailed, ev.err, "")
	}
}

// finish is the only exit of a job: the working file goes first, then the
// terminal state, the final message and the slot.
func (c *Coordinator) finish(j *job.Job, state job.State, cause error, completedText string) {
	ctx := c.jobContext(j)
	logger := logctx.LoggerFromContext(ctx)

	c.releaseInterrupt(j.Requester.ID)
	c.removeWorkingFile(ctx, j)

	j.Err = cause
	if err := j.Transition(state); err != nil {
		logger.ErrorContext(ctx, "forcing terminal state", "err", err)
		c.Telemetry.RecordSystemError("coordinator", "invalid_transition")

		j.State = state
		j.UpdatedAt = time.Now()
	}

	c.Bridge.Send(j.ID, result(j, completedText))
	c.Bridge.Close(j.ID)

	snapshot := j.Snapshot(c.Registry.IsCancelled(j.Requester.ID))

	c.Registry.Release(j.Requester.ID)
	delete(c.jobs, j.Requester.ID)

	c.Telemetry.RecordJob(ctx, j.Requester.Origin, string(state), time.Since(j.CreatedAt))

	if cause != nil && state == job.StateFailed {
		logger.ErrorContext(ctx, "job failed", "err", cause)
	} else {
		logger.InfoContext(ctx, "job finished", "state", state, "duration", time.Since(j.CreatedAt).String())
	}

	select {
	case c.OnJobFinished <- snapshot:
	default:
		logger.DebugContext(ctx, "job finished notification dropped")
	}
}

func (c *Coordinator) removeWorkingFile(ctx context.Context, j *job.Job) {
	if j.WorkingFile == "" {
		return
	}

	logger := logctx.LoggerFromContext(ctx).With("path", j.WorkingFile)

	if err := os.Remove(j.WorkingFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.ErrorContext(ctx, "failed to remove working file", "err", err)
		c.Telemetry.RecordSystemError("coordinator", "working_file_cleanup")
	}

	if c.Ledger != nil {
		if err := c.Ledger.Untrack(ctx, j.WorkingFile); err != nil {
			logger.WarnContext(ctx, "failed to untrack working file", "err", err)
		}
	}

	j.WorkingFile = ""
}

// cancelCause reports why a job should stop at a phase boundary, if at all.
func (c *Coordinator) cancelCause(j *job.Job) error {
	switch {
	case c.Registry.IsCancelled(j.Requester.ID) && c.stopping:
		return ErrShuttingDown
	case c.Registry.IsCancelled(j.Requester.ID):
		return job.ErrCancelledByUser
	default:
		return nil
	}
}

func (c *Coordinator) jobContext(j *job.Job) context.Context {
	return logctx.WithJob(c.runCtx, j.ID, string(j.Requester.ID))
}

// interruptible returns the context of a transfer phase. A user cancel ends
// it, so a source or sink stuck in I/O gives up instead of waiting for the
// next chunk boundary.
func (c *Coordinator) interruptible(j *job.Job) context.Context {
	ctx, stop := context.WithCancelCause(c.jobContext(j))
	c.interrupts[j.Requester.ID] = stop

	return ctx
}

func (c *Coordinator) releaseInterrupt(id job.RequesterID) {
	if stop, ok := c.interrupts[id]; ok {
		stop(nil)
		delete(c.interrupts, id)
	}
}

type phaseFunc func(ctx context.Context) phaseDone

// spawn runs fn on its own goroutine and delivers its report to Run. A panic
// in fn is reported as a failure of the phase.
func (c *Coordinator) spawn(ctx context.Context, j *job.Job, phase job.Phase, fn phaseFunc) {
	requester, jobID := j.Requester.ID, j.ID

	go func() {
		var ev phaseDone

		func() {
			defer func() {
				if r := recover(); r != nil {
					logctx.LoggerFromContext(ctx).ErrorContext(ctx, "job phase panic",
						"phase", phase,
						"panic", r,
						"stack", string(debug.Stack()))
					c.Telemetry.RecordSystemError("coordinator", "panic")

					ev = phaseDone{outcome: transfer.Failed, err: fmt.Errorf("%s panicked: %v", phase, r)}
					if phase == job.PhaseDownload || phase == job.PhaseUpload {
						ev.err = &job.TransferError{Phase: phase, Err: ev.err}
					}
				}
			}()

			ev = fn(ctx)
		}()

		ev.requester, ev.jobID, ev.phase = requester, jobID, phase

		select {
		case c.events <- ev:
		case <-c.stopped:
		}
	}()
}

func (c *Coordinator) analyze(pageURL string) phaseFunc {
	return func(ctx context.Context) phaseDone {
		candidates, err := c.Discoverer.Discover(ctx, pageURL)
		if err != nil {
			return phaseDone{outcome: transfer.Failed, err: err}
		}

		best, err := candidate.SelectBest(candidates)
		if err != nil {
			var noCandidates *candidate.NoCandidatesError
			if errors.As(err, &noCandidates) {
				noCandidates.PageURL = pageURL
			}

			return phaseDone{outcome: transfer.Failed, err: err}
		}

		return phaseDone{
			outcome:   transfer.Completed,
			candidate: best,
			verdict:   c.Prober.Probe(ctx, best),
		}
	}
}

func (c *Coordinator) relayDirect(target string, location *url.URL) phaseFunc {
	return func(ctx context.Context) phaseDone {
		ctx, cancel := c.phaseContext(ctx)
		defer cancel()

		if err := c.Relay.RelayURL(ctx, target, location); err != nil {
			return phaseDone{outcome: transfer.Failed, err: err}
		}

		return phaseDone{outcome: transfer.Completed}
	}
}

func (c *Coordinator) download(jobID string, requester job.RequesterID, location *url.URL, f *os.File) phaseFunc {
	return func(ctx context.Context) phaseDone {
		defer f.Close()

		var res transfer.Result

		phaseCtx, cancel := c.phaseContext(ctx)
		defer cancel()

		c.instrument(phaseCtx, job.PhaseDownload, func(ctx context.Context) transfer.Result {
			body, size, err := c.Fetcher.Fetch(ctx, location)
			if err != nil {
				return transfer.Result{Outcome: transfer.Failed, Err: err}
			}
			defer body.Close()

			r := c.Engine.Run(transfer.Request{
				Source:    body,
				Size:      size,
				Sink:      f,
				Cancelled: c.poller(ctx, requester),
				OnProgress: func(p transfer.Progress) {
					c.Bridge.Post(jobID, progress.Update{Phase: job.PhaseDownload, Progress: p})
				},
			})

			if r.Outcome == transfer.Completed {
				if err := f.Sync(); err != nil {
					return transfer.Result{Outcome: transfer.Failed, Progress: r.Progress, Err: err}
				}
			}

			return r
		}, &res)

		return c.settle(phaseCtx, requester, job.PhaseDownload, res)
	}
}

func (c *Coordinator) upload(jobID string, requester job.Requester, name, workingFile string) phaseFunc {
	return func(ctx context.Context) phaseDone {
		var res transfer.Result

		phaseCtx, cancel := c.phaseContext(ctx)
		defer cancel()

		c.instrument(phaseCtx, job.PhaseUpload, func(ctx context.Context) transfer.Result {
			f, err := os.Open(workingFile)
			if err != nil {
				return transfer.Result{Outcome: transfer.Failed, Err: err}
			}
			defer f.Close()

			stat, err := f.Stat()
			if err != nil {
				return transfer.Result{Outcome: transfer.Failed, Err: err}
			}

			sink, err := c.Relay.OpenSink(ctx, requester.Target, name, stat.Size())
			if err != nil {
				return transfer.Result{Outcome: transfer.Failed, Err: err}
			}

			r := c.Engine.Run(transfer.Request{
				Source:    f,
				Size:      stat.Size(),
				Sink:      sink,
				Cancelled: c.poller(ctx, requester.ID),
				OnProgress: func(p transfer.Progress) {
					c.Bridge.Post(jobID, progress.Update{Phase: job.PhaseUpload, Progress: p})
				},
			})

			switch {
			case r.Outcome == transfer.Completed:
				if err := sink.Close(); err != nil {
					return transfer.Result{Outcome: transfer.Failed, Progress: r.Progress, Err: err}
				}
			case r.Outcome == transfer.Cancelled || c.Registry.IsCancelled(requester.ID):
				sink.Abort(job.ErrCancelledByUser)
			default:
				sink.Abort(r.Err)
			}

			return r
		}, &res)

		return c.settle(phaseCtx, requester.ID, job.PhaseUpload, res)
	}
}

// instrument runs a transfer phase inside telemetry and stores its result.
func (c *Coordinator) instrument(ctx context.Context, phase job.Phase, fn func(ctx context.Context) transfer.Result, out *transfer.Result) {
	_, _, _ = c.Telemetry.InstrumentPhase(ctx, string(phase), func(ctx context.Context) (string, int64, error) {
		*out = fn(ctx)

		return out.Outcome.String(), out.Progress.BytesDone, out.Err
	})
}

// settle decides the outcome reported for a transfer phase. A user cancel
// wins over everything; a phase timeout is a failure; shutdown is a cancel.
func (c *Coordinator) settle(phaseCtx context.Context, requester job.RequesterID, phase job.Phase, res transfer.Result) phaseDone {
	shutdown := c.runCtx.Err() != nil

	switch {
	case res.Outcome == transfer.Completed:
		return phaseDone{outcome: transfer.Completed}
	case c.Registry.IsCancelled(requester) && shutdown:
		return phaseDone{outcome: transfer.Cancelled, err: ErrShuttingDown}
	case c.Registry.IsCancelled(requester):
		return phaseDone{outcome: transfer.Cancelled, err: job.ErrCancelledByUser}
	case errors.Is(phaseCtx.Err(), context.DeadlineExceeded) && !shutdown:
		return phaseDone{outcome: transfer.Failed, err: &PhaseTimeoutError{Phase: phase, Timeout: c.cfg.PhaseTimeout}}
	case shutdown:
		return phaseDone{outcome: transfer.Cancelled, err: ErrShuttingDown}
	default:
		return phaseDone{outcome: transfer.Failed, err: &job.TransferError{Phase: phase, Err: res.Err}}
	}
}

// poller is the cancellation check handed to the transfer engine.
func (c *Coordinator) poller(ctx context.Context, requester job.RequesterID) func() bool {
	return func() bool {
		return ctx.Err() != nil || c.Registry.IsCancelled(requester)
	}
}

func (c *Coordinator) phaseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.PhaseTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.PhaseTimeout)
	}

	return context.WithCancel(ctx)
}

// uploadName is the file name shown at the destination.
func uploadName(j *job.Job) string {
	if j.Candidate != nil {
		if name := path.Base(j.Candidate.Location.Path); name != "" && name != "/" && name != "." {
			return name
		}
	}

	return filepath.Base(j.WorkingFile)
}
