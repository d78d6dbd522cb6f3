package notifier

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/media_relay/internal/job"
	"github.com/italolelis/media_relay/internal/logctx"
)

// FormatJob renders a finished job for a notification channel. Cancelled
// jobs are not worth a notification and yield false.
func FormatJob(s job.Snapshot) (string, bool) {
	switch s.State {
	case job.StateCompleted:
		msg := fmt.Sprintf("✅ %s delivered from %s", resolutionOr(s.Resolution), s.PageURL)
		if s.KnownSize > 0 {
			msg += fmt.Sprintf(" (%s)", humanize.Bytes(uint64(s.KnownSize)))
		}

		return msg, true
	case job.StateFailed:
		return fmt.Sprintf("❌ Job failed for %s: %s", s.PageURL, s.Error), true
	default:
		return "", false
	}
}

// Watch forwards finished jobs to n until events is closed or ctx is done.
func Watch(ctx context.Context, n Notifier, events <-chan job.Snapshot) {
	logger := logctx.LoggerFromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-events:
			if !ok {
				return
			}

			content, ok := FormatJob(s)
			if !ok {
				continue
			}

			if err := n.Notify(ctx, content); err != nil {
				logger.Error("failed to send notification", "job_id", s.ID, "err", err)
			}
		}
	}
}

func resolutionOr(r string) string {
	if r == "" {
		return "Media"
	}

	return r
}
