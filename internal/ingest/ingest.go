package ingest

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/async"
)

// Enqueuer is where sources hand their uploads.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) (uuid.UUID, error)
}

// FileResult is the per-file outcome of a directory ingest.
type FileResult struct {
	Path  string
	JobID uuid.UUID
	Err   string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

// AllowedExt checks a file extension against constants.AllowedExtensions.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden reports whether a file or directory name starts with '.'.
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
