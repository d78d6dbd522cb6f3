package logctx

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey contextKey = "logger"
	jobKey    contextKey = "job"
)

// JobAttrs identifies the job a context is working for.
type JobAttrs struct {
	JobID       string
	RequesterID string
}

// WithLogger returns a new context with the provided slog.Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the slog.Logger from the context, or returns slog.Default() if not found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

// WithJob tags ctx with the job identity. Records logged through a TraceHandler
// with this context carry job_id and requester_id.
func WithJob(ctx context.Context, jobID, requesterID string) context.Context {
	return context.WithValue(ctx, jobKey, JobAttrs{JobID: jobID, RequesterID: requesterID})
}

// JobFromContext returns the job identity stored by WithJob.
func JobFromContext(ctx context.Context) (JobAttrs, bool) {
	attrs, ok := ctx.Value(jobKey).(JobAttrs)

	return attrs, ok
}
