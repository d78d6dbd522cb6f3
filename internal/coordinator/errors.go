package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/media_relay/internal/candidate"
	"github.com/italolelis/media_relay/internal/discovery"
	"github.com/italolelis/media_relay/internal/job"
	"github.com/italolelis/media_relay/internal/relay"
	"github.com/italolelis/media_relay/internal/transfer"
)

var (
	// ErrStopped is returned by calls made after Run has returned.
	ErrStopped = errors.New("coordinator is stopped")
	// ErrShuttingDown is the cause recorded on jobs cancelled by shutdown.
	ErrShuttingDown = errors.New("service is shutting down")
)

// PhaseTimeoutError is the failure of a phase that outlived PhaseTimeout.
type PhaseTimeoutError struct {
	Phase   job.Phase
	Timeout time.Duration
}

func (e *PhaseTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Phase, e.Timeout)
}

// DescribeError turns a job error into a line fit for the requester.
func DescribeError(err error) string {
	if err == nil {
		return ""
	}

	var (
		noCandidates   *candidate.NoCandidatesError
		discoveryErr   *discovery.Error
		alreadyRunning *job.AlreadyRunningError
		timeoutErr     *PhaseTimeoutError
		transferErr    *job.TransferError
	)

	switch {
	case errors.Is(err, job.ErrCancelledByUser):
		return "Canceled by user."
	case errors.Is(err, ErrShuttingDown):
		return "Canceled: the service is shutting down."
	case errors.Is(err, job.ErrNothingToConfirm):
		return "Nothing to confirm right now."
	case errors.Is(err, job.ErrNoActiveJob):
		return "You have no running task."
	case errors.As(err, &alreadyRunning):
		return "You already have a task running. Please wait or /cancel."
	case errors.As(err, &noCandidates):
		return "No mp4 links found on page."
	case errors.As(err, &discoveryErr):
		return fmt.Sprintf("Could not analyze the page (%s).", discoveryErr.Reason)
	case errors.As(err, &timeoutErr):
		return fmt.Sprintf("The %s took longer than %s and was stopped.", timeoutErr.Phase, timeoutErr.Timeout)
	case errors.As(err, &transferErr):
		return describeTransfer(transferErr)
	default:
		return err.Error()
	}
}

func describeTransfer(e *job.TransferError) string {
	var (
		streamErr *transfer.StreamError
		authErr   *relay.AuthenticationError
		destErr   *relay.DestinationError
		netErr    *relay.NetworkError
	)

	switch {
	case errors.As(e.Err, &authErr):
		return fmt.Sprintf("The %s was rejected: the relay refused our credentials.", e.Phase)
	case errors.As(e.Err, &destErr):
		return fmt.Sprintf("The %s failed: destination %q is unavailable.", e.Phase, destErr.Target)
	case errors.As(e.Err, &streamErr):
		return fmt.Sprintf("The %s broke off after %s: %v", e.Phase, humanize.Bytes(uint64(streamErr.BytesDone)), streamErr.Err)
	case errors.As(e.Err, &netErr):
		return fmt.Sprintf("The %s failed: %v", e.Phase, netErr)
	default:
		return fmt.Sprintf("The %s failed: %v", e.Phase, e.Err)
	}
}
