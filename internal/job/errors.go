package job

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelledByUser marks a job that ended because its requester asked.
	ErrCancelledByUser = errors.New("cancelled by user")
	// ErrNothingToConfirm is returned when a confirm arrives with no job awaiting one.
	ErrNothingToConfirm = errors.New("no job is awaiting confirmation")
	// ErrNoActiveJob is returned when a cancel arrives with no active job.
	ErrNoActiveJob = errors.New("no active job")
)

// AlreadyRunningError rejects a request while the requester has an active job.
type AlreadyRunningError struct {
	Requester RequesterID
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("a job is already running for %s", e.Requester)
}

// TransferError is an I/O failure in the download or upload phase.
type TransferError struct {
	Phase Phase
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError reports a state change the lifecycle does not allow.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid job transition from %s to %s", e.From, e.To)
}
