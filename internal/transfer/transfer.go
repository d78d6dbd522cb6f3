// Package transfer implements the chunked copy used by both the download
// (network to file) and upload (file to network) phases.
package transfer

import (
	"errors"
	"io"
	"time"
)

// DefaultChunkSize is the read/write unit and the cancellation latency bound.
const DefaultChunkSize = 256 * 1024

type Outcome int

const (
	Completed Outcome = iota
	Cancelled
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress is recomputed at every chunk boundary. RateBps is the average
// since the transfer started. BytesTotal is 0 when the size is unknown.
type Progress struct {
	BytesDone  int64
	BytesTotal int64
	RateBps    float64
	ETASeconds int64
}

// Percent returns completion in [0,100], or -1 when the total is unknown.
func (p Progress) Percent() float64 {
	if p.BytesTotal <= 0 {
		return -1
	}

	return float64(p.BytesDone) * 100 / float64(p.BytesTotal)
}

type Request struct {
	Source io.Reader
	// Size is the declared length of Source, 0 or negative if unknown.
	Size int64
	Sink io.Writer
	// Cancelled is polled before every chunk.
	Cancelled func() bool
	// OnProgress runs synchronously after every written chunk and must not block.
	OnProgress func(Progress)
}

type Result struct {
	Outcome  Outcome
	Progress Progress
	Err      error
}

type Engine struct {
	chunkSize int
	now       func() time.Time
}

func NewEngine(chunkSize int) *Engine {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &Engine{chunkSize: chunkSize, now: time.Now}
}

func (e *Engine) ChunkSize() int {
	return e.chunkSize
}

// Run copies Source to Sink until EOF, a cancel or an error. The sink is
// never closed; discarding partial output is the caller's job.
func (e *Engine) Run(req Request) Result {
	buf := make([]byte, e.chunkSize)
	start := e.now()

	total := req.Size
	if total < 0 {
		total = 0
	}

	p := Progress{BytesTotal: total}

	for {
		if req.Cancelled != nil && req.Cancelled() {
			return Result{Outcome: Cancelled, Progress: p}
		}

		n, rerr := io.ReadFull(req.Source, buf)
		if n > 0 {
			if _, werr := req.Sink.Write(buf[:n]); werr != nil {
				return Result{Outcome: Failed, Progress: p, Err: &StreamError{Op: OpWrite, BytesDone: p.BytesDone, Err: werr}}
			}

			p = e.progress(start, p.BytesDone+int64(n), p.BytesTotal)
			if req.OnProgress != nil {
				req.OnProgress(p)
			}
		}

		if rerr == nil {
			continue
		}

		if !errors.Is(rerr, io.EOF) && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return Result{Outcome: Failed, Progress: p, Err: &StreamError{Op: OpRead, BytesDone: p.BytesDone, Err: rerr}}
		}

		if total > 0 && p.BytesDone < total {
			return Result{Outcome: Failed, Progress: p, Err: &StreamError{Op: OpRead, BytesDone: p.BytesDone, Err: io.ErrUnexpectedEOF}}
		}

		return Result{Outcome: Completed, Progress: p}
	}
}

func (e *Engine) progress(start time.Time, done, total int64) Progress {
	// observed bytes win over a stale declared size
	if total > 0 && done > total {
		total = done
	}

	p := Progress{BytesDone: done, BytesTotal: total}

	elapsed := e.now().Sub(start).Seconds()
	if elapsed <= 0 {
		return p
	}

	p.RateBps = float64(done) / elapsed
	if total > 0 && p.RateBps > 0 {
		p.ETASeconds = int64(float64(total-done) / p.RateBps)
	}

	return p
}
