// Package storage keeps the ledger of working files that are still on disk.
package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"time"
)

// WorkingFile is a temp file owned by a job of some process instance.
type WorkingFile struct {
	Path       string
	JobID      string
	InstanceID string
	CreatedAt  time.Time
}

type WorkingFileReadRepository interface {
	ListWorkingFiles(ctx context.Context) ([]WorkingFile, error)
}

type WorkingFileWriteRepository interface {
	Track(ctx context.Context, jobID, path string) error
	Untrack(ctx context.Context, path string) error
}

type WorkingFileRepository interface {
	WorkingFileReadRepository
	WorkingFileWriteRepository
}

// GenerateInstanceID returns a unique string for this process (hostname+pid+random)
func GenerateInstanceID() string {
	host, _ := os.Hostname()
	pid := os.Getpid()
	rnd := make([]byte, 4)
	_, _ = rand.Read(rnd)

	return host + "-" + strconv.Itoa(pid) + "-" + hex.EncodeToString(rnd)
}
