package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/media_relay/internal/storage"
	"github.com/italolelis/media_relay/internal/telemetry"
)

// InstrumentedWorkingFileRepository wraps WorkingFileRepository with telemetry.
type InstrumentedWorkingFileRepository struct {
	repo      *WorkingFileRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedWorkingFileRepository(dbConn *sql.DB, instanceID string, tel *telemetry.Telemetry) *InstrumentedWorkingFileRepository {
	return &InstrumentedWorkingFileRepository{
		repo:      NewWorkingFileRepository(dbConn, instanceID),
		telemetry: tel,
	}
}

func (r *InstrumentedWorkingFileRepository) Track(ctx context.Context, jobID, path string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "track_working_file", func(ctx context.Context) error {
		return r.repo.Track(ctx, jobID, path)
	})
}

func (r *InstrumentedWorkingFileRepository) Untrack(ctx context.Context, path string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "untrack_working_file", func(ctx context.Context) error {
		return r.repo.Untrack(ctx, path)
	})
}

// ListWorkingFiles retrieves all tracked files with telemetry.
func (r *InstrumentedWorkingFileRepository) ListWorkingFiles(ctx context.Context) ([]storage.WorkingFile, error) {
	var result []storage.WorkingFile

	err := r.telemetry.InstrumentDBOperation(ctx, "list_working_files", func(ctx context.Context) error {
		var err error
		result, err = r.repo.ListWorkingFiles(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
