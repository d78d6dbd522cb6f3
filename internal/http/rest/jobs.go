// Package rest exposes the job coordinator over HTTP and streams job
// updates to websocket subscribers.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/italolelis/media_relay/internal/coordinator"
	"github.com/italolelis/media_relay/internal/job"
	"github.com/italolelis/media_relay/internal/logctx"
)

// Origin tags requesters coming from the HTTP API.
const Origin = "http"

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	maxBody    = 64 * 1024
)

type Jobs interface {
	Submit(ctx context.Context, r job.Requester, pageURL string) (job.Snapshot, error)
	Confirm(ctx context.Context, id job.RequesterID) error
	Cancel(ctx context.Context, id job.RequesterID) error
	Jobs(ctx context.Context) ([]job.Snapshot, error)
}

type SubmitRequest struct {
	URL       string `json:"url"`
	Requester string `json:"requester"`
	Target    string `json:"target"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type JobsHandler struct {
	username string
	password string
	jobs     Jobs
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewJobsHandler creates the jobs API. Basic auth is enforced when username
// is set.
func NewJobsHandler(username, password string, jobs Jobs, hub *Hub) *JobsHandler {
	return &JobsHandler{
		username: username,
		password: password,
		jobs:     jobs,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *JobsHandler) Routes() http.Handler {
	r := chi.NewRouter()

	if h.username != "" {
		r.Use(h.basicAuthMiddleware)
	}

	r.Post("/jobs", h.HandleSubmit)
	r.Get("/jobs", h.HandleList)
	r.Post("/jobs/{requester}/confirm", h.HandleConfirm)
	r.Post("/jobs/{requester}/cancel", h.HandleCancel)
	r.Get("/jobs/{requester}/events", h.HandleEvents)

	return r
}

// RequesterID namespaces an HTTP requester name.
func RequesterID(name string) job.RequesterID {
	return job.RequesterID(Origin + ":" + name)
}

// HandleSubmit starts a job. The requester defaults to the basic auth user.
func (h *JobsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		logger.Debug("failed to decode request", "err", err)
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})

		return
	}

	if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "url must be an absolute http(s) url"})
		return
	}

	name := req.Requester
	if name == "" {
		name, _, _ = r.BasicAuth()
	}

	if name == "" {
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "requester is required"})
		return
	}

	requester := job.Requester{ID: RequesterID(name), Origin: Origin, Target: req.Target}

	snapshot, err := h.jobs.Submit(r.Context(), requester, req.URL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logger.Info("job submitted", "job_id", snapshot.ID, "requester_id", requester.ID)

	writeJSON(w, r, http.StatusAccepted, snapshot)
}

func (h *JobsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.Jobs(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *JobsHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Confirm(r.Context(), RequesterID(chi.URLParam(r, "requester"))); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *JobsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Cancel(r.Context(), RequesterID(chi.URLParam(r, "requester"))); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// HandleEvents streams the requester's job updates over a websocket until
// the client goes away.
func (h *JobsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())
	id := RequesterID(chi.URLParam(r, "requester"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("failed to upgrade to websocket", "err", err)
		return
	}
	defer conn.Close()

	// the server's ReadTimeout survives the hijack
	_ = conn.SetReadDeadline(time.Time{})

	events := h.hub.subscribe(id)
	defer h.hub.unsubscribe(id, events)

	gone := make(chan struct{})

	go func() {
		defer close(gone)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("websocket write failed", "err", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *JobsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var running *job.AlreadyRunningError

	switch {
	case errors.As(err, &running), errors.Is(err, job.ErrNothingToConfirm):
		status = http.StatusConflict
	case errors.Is(err, job.ErrNoActiveJob):
		status = http.StatusNotFound
	case errors.Is(err, coordinator.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		logctx.LoggerFromContext(r.Context()).Error("failed to handle request", "err", err)
	}

	writeJSON(w, r, status, ErrorResponse{Error: coordinator.DescribeError(err)})
}

func (h *JobsHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		if username != h.username || password != h.password {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}
