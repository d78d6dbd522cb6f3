// Package cleanup removes working files left behind by crashed or stale jobs.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/media_relay/internal/logctx"
	"github.com/italolelis/media_relay/internal/storage"
)

// Sweeper deletes orphaned working files. A ledger entry of another process
// instance is an orphan. Entries of this instance belong to running jobs,
// which untrack them when they end, so only those whose file is already gone
// are dropped. A prefixed file in WorkDir that no entry of this instance
// tracks is removed once it is older than Keep.
type Sweeper struct {
	Repo       storage.WorkingFileRepository
	WorkDir    string
	Prefix     string
	Keep       time.Duration
	InstanceID string
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	logger := logctx.LoggerFromContext(ctx).With("component", "cleanup")
	ctx = logctx.WithLogger(ctx, logger)

	if err := s.Sweep(ctx); err != nil {
		logger.Error("initial sweep failed", "err", err)
	}

	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				logger.Error("sweep failed", "err", err)
			}
		}
	}
}

// Sweep performs a single pass over the ledger and the work directory.
func (s *Sweeper) Sweep(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	files, err := s.Repo.ListWorkingFiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list working files: %w", err)
	}

	tracked := make(map[string]struct{}, len(files))

	var errs []error

	for _, rec := range files {
		if rec.InstanceID == s.InstanceID {
			if _, err := os.Stat(rec.Path); err == nil || !os.IsNotExist(err) {
				tracked[rec.Path] = struct{}{}
				continue
			}

			if err := s.Repo.Untrack(ctx, rec.Path); err != nil {
				errs = append(errs, err)
			}

			continue
		}

		if err := removeFile(rec.Path); err != nil {
			logger.Error("failed to delete orphaned file", "file", rec.Path, "job_id", rec.JobID, "err", err)
			errs = append(errs, err)

			continue
		}

		if err := s.Repo.Untrack(ctx, rec.Path); err != nil {
			errs = append(errs, err)
			continue
		}

		logger.Info("deleted orphaned file", "file", rec.Path, "job_id", rec.JobID, "owner", rec.InstanceID)
	}

	if err := s.sweepDir(ctx, tracked, now); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (s *Sweeper) sweepDir(ctx context.Context, tracked map[string]struct{}, now time.Time) error {
	logger := logctx.LoggerFromContext(ctx)

	dir := s.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read work dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), s.Prefix+"-") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if _, ok := tracked[path]; ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue // removed meanwhile
		}

		if now.Sub(info.ModTime()) <= s.Keep {
			continue
		}

		if err := removeFile(path); err != nil {
			logger.Error("failed to delete stale file", "file", path, "err", err)
			continue
		}

		logger.Info("deleted stale file", "file", path)
	}

	return nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
