package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/async"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/pipeline"
)

// DirectoryOptions controls EnqueueDirectory.
type DirectoryOptions struct {
	DocumentType string // applied to every file; empty means detect per file
	SkipHidden   bool
	PageLimit    int
	// Done is attached to every job.
	Done func(ctx context.Context, out pipeline.Outcome, err error)
}

// EnqueueDirectory walks root and enqueues every supported file. Walk and
// read errors are recorded per file and do not stop the walk.
func EnqueueDirectory(ctx context.Context, q Enqueuer, root string, opts DirectoryOptions, logger *slog.Logger) ([]FileResult, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if opts.SkipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		id, err := enqueueFile(ctx, q, path, opts)
		if err != nil {
			logger.Warn("ingest.dir.file_failed", "path", path, "error", err)
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		results = append(results, FileResult{Path: path, JobID: id})
		stats.Succeeded++
		return nil
	})
	logger.Info("ingest.dir.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

func enqueueFile(ctx context.Context, q Enqueuer, path string, opts DirectoryOptions) (uuid.UUID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return uuid.Nil, err
	}
	return q.Enqueue(ctx, async.Job{
		Upload: pipeline.Upload{
			Filename:     filepath.Base(path),
			Data:         data,
			DocumentType: opts.DocumentType,
			PageLimit:    opts.PageLimit,
		},
		Done: opts.Done,
	})
}
