package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

// Rasterizer renders one PDF page to PNG bytes.
type Rasterizer interface {
	Render(ctx context.Context, pdfPath string, pageIndex, dpi int) ([]byte, error)
}

// PdftoppmRasterizer renders pages with poppler's pdftoppm.
type PdftoppmRasterizer struct {
	binary string
	runner Runner
	logger *slog.Logger
}

func NewPdftoppmRasterizer(binary string, runner Runner, logger *slog.Logger) *PdftoppmRasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PdftoppmRasterizer{binary: binary, runner: runner, logger: logger}
}

// Render writes a single PNG for pageIndex (0-based) and returns its bytes.
func (r *PdftoppmRasterizer) Render(ctx context.Context, pdfPath string, pageIndex, dpi int) ([]byte, error) {
	if pageIndex < 0 {
		return nil, fmt.Errorf("%w: negative page index %d", common.ErrInvalidInput, pageIndex)
	}
	if dpi <= 0 {
		dpi = 300
	}
	tmpDir, err := os.MkdirTemp("", "dx-pp-*")
	if err != nil {
		return nil, err
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			r.logger.Warn("failed to remove temp dir", "dir", path, "error", err)
		}
	}(tmpDir)

	page := strconv.Itoa(pageIndex + 1)
	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -f N -l N -r 300 -png -singlefile <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.binary, r.logger,
		"-f", page, "-l", page, "-r", strconv.Itoa(dpi), "-png", "-singlefile", pdfPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %s: %w: %s", page, err, truncate(string(errb), 512))
	}

	img, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm produced no image for page %s: %w", page, err)
	}
	return img, nil
}
