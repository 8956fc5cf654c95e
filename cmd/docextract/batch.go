package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/async"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/ingest"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/pipeline"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/repository"
)

func batchCmd() *cobra.Command {
	var (
		docType    string
		pages      int
		workers    int
		skipHidden bool
		out        string
	)
	cmd := &cobra.Command{
		Use:   "batch DIR",
		Short: "Extract every supported file under DIR, then optionally export the run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			if workers > 0 {
				app.Config.Queue.Workers = workers
			}

			started := time.Now().UTC()
			q := app.NewQueue()

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				ok, fail int
			)
			done := func(_ context.Context, o pipeline.Outcome, err error) {
				defer wg.Done()
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					fail++
					failColor.Fprintf(os.Stderr, "✘ %s: %v\n", o.Filename, err)
				case !o.Result.Success:
					fail++
					failColor.Fprintf(os.Stderr, "✘ %s %s: %s\n", o.Filename, o.DocumentType, o.Result.Error)
				default:
					ok++
					okColor.Fprintf(os.Stderr, "✔ %s %s confidence=%.3f\n", o.Filename, o.DocumentType, o.Result.Confidence)
				}
			}

			counting := &countingQueue{q: q, wg: &wg}
			results, stats, err := ingest.EnqueueDirectory(ctx, counting, args[0], ingest.DirectoryOptions{
				DocumentType: docType,
				SkipHidden:   skipHidden,
				PageLimit:    pages,
				Done:         done,
			}, nil)
			wg.Wait()
			q.Shutdown(context.Background())
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Err != "" {
					failColor.Fprintf(os.Stderr, "✘ %s: %s\n", r.Path, r.Err)
				}
			}
			dimColor.Fprintf(os.Stderr, "%d files matched, %d extracted, %d failed\n", stats.Matched, ok, fail+int(stats.Failed))

			if out == "" {
				return nil
			}
			// export windows are whole days, so earlier runs of the same day are included
			b, err := app.Exporter.ExportLogsXLSX(ctx, repository.LogFilter{From: &started})
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			okColor.Fprintf(os.Stderr, "✔ wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&docType, "type", "t", "", "document type for every file; detected per file when empty")
	cmd.Flags().IntVar(&pages, "pages", 0, "only read the first N pages of each file")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel documents (default QUEUE_WORKERS)")
	cmd.Flags().BoolVar(&skipHidden, "skip-hidden", true, "skip dot files and directories")
	cmd.Flags().StringVarP(&out, "out", "o", "", "also export today's history, this run included, to an XLSX file")
	return cmd
}

// countingQueue adds to wg for every accepted job so the caller can wait for
// all Done callbacks.
type countingQueue struct {
	q  *async.ProcessorQueue
	wg *sync.WaitGroup
}

func (c *countingQueue) Enqueue(ctx context.Context, job async.Job) (uuid.UUID, error) {
	c.wg.Add(1)
	id, err := c.q.Enqueue(ctx, job)
	if err != nil {
		c.wg.Done()
	}
	return id, err
}
