// Package job holds the job lifecycle model: requesters, states, the allowed
// transitions between them and the per-requester registry.
package job

import (
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/media_relay/internal/candidate"
)

// RequesterID is the single-flight and cancellation key. Transports namespace
// it, e.g. "tg:42" or "http:alice".
type RequesterID string

// Requester identifies who asked for a job. Origin names the transport that
// renders for it and Target is the relay destination.
type Requester struct {
	ID     RequesterID
	Origin string
	Target string
}

type State string

const (
	StateAnalyzing            State = "analyzing"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateDownloading          State = "downloading"
	StateUploading            State = "uploading"
	StateCompleted            State = "completed"
	StateCancelled            State = "cancelled"
	StateFailed               State = "failed"
)

func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

type Phase string

const (
	PhaseAnalysis Phase = "analysis"
	PhaseRelay    Phase = "relay"
	PhaseDownload Phase = "download"
	PhaseUpload   Phase = "upload"
)

var transitions = map[State][]State{
	StateAnalyzing:            {StateAwaitingConfirmation, StateFailed, StateCancelled},
	StateAwaitingConfirmation: {StateCompleted, StateDownloading, StateCancelled},
	StateDownloading:          {StateUploading, StateCancelled, StateFailed},
	StateUploading:            {StateCompleted, StateCancelled, StateFailed},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

// Job is owned by the coordinator goroutine; nothing else mutates it.
type Job struct {
	ID          string
	Requester   Requester
	PageURL     string
	State       State
	Candidate   *candidate.Candidate
	Verdict     candidate.Verdict
	WorkingFile string
	// Relaying is set while a confirmed job is handed to the relay directly.
	Relaying  bool
	Err       error
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(requester Requester, pageURL string) *Job {
	now := time.Now()

	return &Job{
		ID:        uuid.NewString(),
		Requester: requester,
		PageURL:   pageURL,
		State:     StateAnalyzing,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the job to state to, or returns *InvalidTransitionError.
func (j *Job) Transition(to State) error {
	if !CanTransition(j.State, to) {
		return &InvalidTransitionError{From: j.State, To: to}
	}

	j.State = to
	j.UpdatedAt = time.Now()

	return nil
}

// Snapshot is a read-only copy of a job safe to hand to other goroutines.
type Snapshot struct {
	ID              string      `json:"id"`
	RequesterID     RequesterID `json:"requester_id"`
	Origin          string      `json:"origin"`
	PageURL         string      `json:"page_url"`
	State           State       `json:"state"`
	Resolution      string      `json:"resolution,omitempty"`
	Location        string      `json:"location,omitempty"`
	KnownSize       int64       `json:"known_size"`
	Fetchable       bool        `json:"fetchable_without_session"`
	Relaying        bool        `json:"relaying"`
	CancelRequested bool        `json:"cancel_requested"`
	Error           string      `json:"error,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (j *Job) Snapshot(cancelRequested bool) Snapshot {
	s := Snapshot{
		ID:              j.ID,
		RequesterID:     j.Requester.ID,
		Origin:          j.Requester.Origin,
		PageURL:         j.PageURL,
		State:           j.State,
		KnownSize:       j.Verdict.KnownSize,
		Fetchable:       j.Verdict.FetchableWithoutSession,
		Relaying:        j.Relaying,
		CancelRequested: cancelRequested,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}

	if j.Candidate != nil {
		s.Resolution = j.Candidate.Resolution()
		s.Location = j.Candidate.Location.String()
	}

	if j.Err != nil {
		s.Error = j.Err.Error()
	}

	return s
}
