package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "por"
	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text
}

// TesseractEngine shells out to a local tesseract install.
type TesseractEngine struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

func NewTesseractEngine(cfg TesseractConfig, runner Runner, logger *slog.Logger) *TesseractEngine {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "por"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractEngine{cfg: cfg, runner: runner, logger: logger}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Recognize(ctx context.Context, image []byte) (Result, error) {
	if err := checkImage(image); err != nil {
		return Result{}, err
	}

	tmpDir, err := os.MkdirTemp("", "dx-tess-*")
	if err != nil {
		return Result{}, fmt.Errorf("%w: temp dir: %v", common.ErrOCRUnavailable, err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("ocr.tesseract.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	in := filepath.Join(tmpDir, "page.img")
	if err := os.WriteFile(in, image, 0o600); err != nil {
		return Result{}, fmt.Errorf("%w: write image: %v", common.ErrOCRUnavailable, err)
	}

	// tesseract <file> stdout -l <lang>
	args := []string{in, "stdout", "-l", e.cfg.Lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Binary, e.logger, args...)
	if err != nil {
		return Result{}, fmt.Errorf("%w: tesseract: %v: %s", common.ErrOCRUnavailable, err, truncate(string(errb), 512))
	}

	lines := strings.Split(Normalize(string(out)), "\n")
	return newResult(e.Name(), lines), nil
}
