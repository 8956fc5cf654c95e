package extract

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/document"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/ocr"
)

type Config struct {
	MinDirectChars     int  // below this many runes (trimmed) OCR runs; default 50
	DPI                int  // OCR render resolution, default 300
	SignatureHeuristic bool // also OCR pages whose text layer mentions "assinado"
	PageWorkers        int  // parallel pages per document, default 4
}

// PageExtractor decides per page between the embedded text layer and OCR.
type PageExtractor struct {
	cfg    Config
	engine ocr.Engine
	logger *slog.Logger
}

// NewPageExtractor accepts a nil engine; OCR is then treated as unavailable
// and pages keep their direct text.
func NewPageExtractor(cfg Config, engine ocr.Engine, logger *slog.Logger) *PageExtractor {
	if cfg.MinDirectChars <= 0 {
		cfg.MinDirectChars = 50
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PageExtractor{cfg: cfg, engine: engine, logger: logger}
}

// NeedsOCR reports whether the direct text is too thin to trust.
func (p *PageExtractor) NeedsOCR(direct string) bool {
	if utf8.RuneCountInString(strings.TrimSpace(direct)) < p.cfg.MinDirectChars {
		return true
	}
	return p.cfg.SignatureHeuristic && strings.Contains(strings.ToLower(direct), "assinado")
}

// Extract never fails: extraction and OCR errors degrade the page to
// whatever text is available.
func (p *PageExtractor) Extract(ctx context.Context, doc document.Document, pageIndex int) PageResult {
	res := PageResult{PageIndex: pageIndex}
	log := p.logger.With("page", pageIndex+1)

	direct, err := doc.PageText(pageIndex)
	if err != nil {
		log.Warn("extract.page.direct_failed", "error", err)
		res.Warnings = append(res.Warnings, err.Error())
		direct = ""
	}
	res.DirectText = direct
	res.FinalText = direct

	if !p.NeedsOCR(direct) {
		log.Debug("extract.page.direct", "chars", utf8.RuneCountInString(direct))
		return res
	}

	ocrText, engine, err := p.runOCR(ctx, doc, pageIndex)
	if err != nil {
		log.Warn("extract.page.ocr_failed", "error", err)
		res.Warnings = append(res.Warnings, err.Error())
		return res
	}

	if ChooseOCR(direct, ocrText) {
		res.FinalText = ocrText
		res.UsedOCR = true
		res.OCREngine = engine
	}
	log.Info("extract.page.ocr",
		"engine", engine,
		"direct_chars", utf8.RuneCountInString(direct),
		"ocr_chars", utf8.RuneCountInString(ocrText),
		"used_ocr", res.UsedOCR,
	)
	return res
}

func (p *PageExtractor) runOCR(ctx context.Context, doc document.Document, pageIndex int) (string, string, error) {
	if p.engine == nil {
		return "", "", errNoEngine
	}
	start := time.Now()
	img, err := doc.RenderPage(ctx, pageIndex, p.cfg.DPI)
	if err != nil {
		return "", "", err
	}
	r, err := p.engine.Recognize(ctx, img)
	if err != nil {
		return "", p.engine.Name(), err
	}
	p.logger.Debug("extract.page.ocr_done",
		"page", pageIndex+1,
		"image_bytes", len(img),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return r.Text, p.engine.Name(), nil
}

// ChooseOCR reports whether OCR output should replace the direct text: only
// when it is non-empty and strictly longer.
func ChooseOCR(direct, ocrText string) bool {
	if strings.TrimSpace(ocrText) == "" {
		return false
	}
	return utf8.RuneCountInString(ocrText) > utf8.RuneCountInString(direct)
}
