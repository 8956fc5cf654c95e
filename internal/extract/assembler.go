package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/document"
)

// EmptyPagePlaceholder stands in for pages that produced no text.
const EmptyPagePlaceholder = "[EMPTY PAGE]"

var errNoEngine = fmt.Errorf("%w: no ocr engine configured", common.ErrOCRUnavailable)

// PageHeader is the delimiter written before each page (1-based).
func PageHeader(pageIndex int) string {
	return fmt.Sprintf("=== PAGE %d ===", pageIndex+1)
}

// Assembler drives a PageExtractor across a document.
type Assembler struct {
	pages   *PageExtractor
	workers int
	logger  *slog.Logger
}

func NewAssembler(pages *PageExtractor, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{pages: pages, workers: pages.cfg.PageWorkers, logger: logger}
}

// Assemble extracts pages [0, min(total, pageLimit)) and joins them with page
// headers. pageLimit <= 0 means every page. A zero-page document yields "".
func (a *Assembler) Assemble(ctx context.Context, doc document.Document, pageLimit int) (string, []PageResult) {
	start := time.Now()
	total := doc.PageCount()
	n := total
	if pageLimit > 0 && pageLimit < n {
		n = pageLimit
	}
	if n <= 0 {
		a.logger.Info("extract.assemble.empty", "total_pages", total)
		return "", nil
	}

	results := make([]PageResult, n)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(a.workers)
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			results[i] = a.pages.Extract(gctx, doc, i)
			return nil
		})
	}
	_ = eg.Wait() // page failures are folded into the results

	var b strings.Builder
	ocrPages := 0
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(PageHeader(r.PageIndex))
		b.WriteString("\n")
		if text := strings.TrimSpace(r.FinalText); text != "" {
			b.WriteString(text)
		} else {
			b.WriteString(EmptyPagePlaceholder)
		}
		if r.UsedOCR {
			ocrPages++
		}
	}

	a.logger.Info("extract.assemble.ok",
		"total_pages", total,
		"pages", n,
		"ocr_pages", ocrPages,
		"chars", b.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return b.String(), results
}
