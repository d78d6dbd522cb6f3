package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/media_relay/internal/storage"
)

// WorkingFileRepository stores the working files of one process instance.
type WorkingFileRepository struct {
	db         *sql.DB
	instanceID string
}

func NewWorkingFileRepository(dbConn *sql.DB, instanceID string) *WorkingFileRepository {
	return &WorkingFileRepository{db: dbConn, instanceID: instanceID}
}

func (r *WorkingFileRepository) Track(ctx context.Context, jobID, path string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO working_files (path, job_id, instance_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			job_id = excluded.job_id,
			instance_id = excluded.instance_id,
			created_at = excluded.created_at`,
		path, jobID, r.instanceID, time.Now().UTC().Format(time.RFC3339),
	)

	return err
}

func (r *WorkingFileRepository) Untrack(ctx context.Context, path string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM working_files WHERE path = ?`, path)

	return err
}

func (r *WorkingFileRepository) ListWorkingFiles(ctx context.Context) ([]storage.WorkingFile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT path, job_id, instance_id, created_at FROM working_files ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []storage.WorkingFile

	for rows.Next() {
		var (
			rec       storage.WorkingFile
			createdAt string
		)

		if err := rows.Scan(&rec.Path, &rec.JobID, &rec.InstanceID, &createdAt); err != nil {
			return nil, err
		}

		rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at for %s: %w", rec.Path, err)
		}

		files = append(files, rec)
	}

	return files, rows.Err()
}
