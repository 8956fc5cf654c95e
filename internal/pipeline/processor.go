package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/document"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/extract"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/llm"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/ocr"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/repository"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/scoring"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/storage"
)

const logTextLimit = 1000

// Upload is one document handed to the processor.
type Upload struct {
	Filename string
	Data     []byte
	// DocumentType is a caller tag; empty or generic falls back to the filename.
	DocumentType string
	// PageLimit overrides Config.MaxPages when positive.
	PageLimit int
}

// Outcome is everything the processor learned about an upload.
type Outcome struct {
	LogID        uuid.UUID
	Filename     string
	DocumentType constants.DocumentType
	Model        string
	Result       StructuredResult
	Text         string
	Pages        []extract.PageResult
	UsedOCR      bool
	Checks       []common.ValidationError
	PDF          *document.Info
	Original     *storage.Object
	Preview      *storage.Object
	ElapsedMs    int64
}

// Config holds processor knobs.
type Config struct {
	MaxPages   int
	PreviewDPI int
}

// Processor runs the whole flow for one upload: validate, assemble text,
// store the original and its preview, structure, and log.
type Processor struct {
	cfg        Config
	assembler  extract.TextAssembler
	service    *Service
	rasterizer ocr.Rasterizer
	store      storage.BlobStore                  // optional
	logs       repository.ExtractionLogRepository // optional
	logger     *slog.Logger
}

func NewProcessor(
	cfg Config,
	assembler extract.TextAssembler,
	service *Service,
	rasterizer ocr.Rasterizer,
	store storage.BlobStore,
	logs repository.ExtractionLogRepository,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PreviewDPI <= 0 {
		cfg.PreviewDPI = 150
	}
	return &Processor{
		cfg:        cfg,
		assembler:  assembler,
		service:    service,
		rasterizer: rasterizer,
		store:      store,
		logs:       logs,
		logger:     logger,
	}
}

// Process returns an error only for uploads that cannot be read at all.
// Structuring failures are reported in Outcome.Result.
func (p *Processor) Process(ctx context.Context, up Upload) (Outcome, error) {
	start := time.Now()
	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
		ctx = common.WithRequestID(ctx, reqID)
	}
	ctx = common.WithFilename(ctx, up.Filename)

	out := Outcome{Filename: up.Filename, DocumentType: ResolveType(up.DocumentType, up.Filename)}
	p.logger.Info("pipeline.process.start",
		"req_id", reqID,
		"filename", up.Filename,
		"bytes", len(up.Data),
		"document_type", out.DocumentType,
	)

	doc, err := p.open(up, &out)
	if err != nil {
		p.logger.Error("pipeline.process.rejected", "req_id", reqID, "filename", up.Filename, "err", err)
		out.ElapsedMs = time.Since(start).Milliseconds()
		out.Result = Failure(err, llm.Usage{})
		p.persist(ctx, &out)
		return out, err
	}
	defer func() {
		if cerr := document.Close(doc); cerr != nil {
			p.logger.Warn("pipeline.process.close_failed", "req_id", reqID, "err", cerr)
		}
	}()

	p.storeBlobs(ctx, up, doc, &out)

	limit := p.cfg.MaxPages
	if up.PageLimit > 0 {
		limit = up.PageLimit
	}
	out.Text, out.Pages = p.assembler.Assemble(ctx, doc, limit)
	for _, pg := range out.Pages {
		if pg.UsedOCR {
			out.UsedOCR = true
			break
		}
	}

	out.Result, out.Model = p.service.structure(ctx, out.Text, string(out.DocumentType))
	if out.Result.Success {
		out.Checks = scoring.Check(out.Result.Data, out.DocumentType)
	}
	out.ElapsedMs = time.Since(start).Milliseconds()
	p.persist(ctx, &out)

	p.logger.Info("pipeline.process.done",
		"req_id", reqID,
		"filename", up.Filename,
		"document_type", out.DocumentType,
		"success", out.Result.Success,
		"confidence", out.Result.Confidence,
		"pages", len(out.Pages),
		"used_ocr", out.UsedOCR,
		"checks_failed", len(out.Checks),
		"elapsed_ms", out.ElapsedMs,
	)
	return out, nil
}

// ResolveType canonicalizes a caller tag, guessing from the filename when the
// tag is empty, unknown or generic.
func ResolveType(tag, filename string) constants.DocumentType {
	dt, known := constants.Canonicalize(tag)
	if known && dt != constants.Generico {
		return dt
	}
	return constants.DetectFromFilename(filename)
}

func (p *Processor) open(up Upload, out *Outcome) (document.Document, error) {
	if len(up.Data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", common.ErrInvalidInput)
	}
	ext := constants.NormalizeExt(filepath.Ext(up.Filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return nil, fmt.Errorf("%w: unsupported extension %q", common.ErrInvalidInput, ext)
	}
	if constants.MapExtToFormat(ext) == constants.PDF {
		info, err := document.ValidatePDF(up.Data)
		if info.PageCount > 0 {
			out.PDF = &info
		}
		if err != nil {
			return nil, err
		}
	}
	return document.Open(up.Filename, up.Data, p.rasterizer)
}

// storeBlobs uploads the original and, for PDFs, a first page preview.
// Storage failures are logged and never fail the upload.
func (p *Processor) storeBlobs(ctx context.Context, up Upload, doc document.Document, out *Outcome) {
	if p.store == nil {
		return
	}
	reqID := common.RequestIDFromContext(ctx)
	ext := filepath.Ext(up.Filename)

	obj, err := p.store.Put(ctx, storage.NewKey(storage.FolderDocuments, up.Filename), up.Data, constants.ContentType(ext))
	if err != nil {
		p.logger.Warn("pipeline.storage.original_failed", "req_id", reqID, "err", err)
	} else {
		out.Original = &obj
	}

	if constants.MapExtToFormat(ext) != constants.PDF {
		return
	}
	png, err := document.Preview(ctx, doc, p.cfg.PreviewDPI)
	if err != nil {
		p.logger.Warn("pipeline.storage.preview_render_failed", "req_id", reqID, "err", err)
		return
	}
	obj, err = p.store.Put(ctx, storage.NewKey(storage.FolderPreviews, storage.PreviewName(up.Filename)), png, "image/png")
	if err != nil {
		p.logger.Warn("pipeline.storage.preview_failed", "req_id", reqID, "err", err)
		return
	}
	out.Preview = &obj
}

func (p *Processor) persist(ctx context.Context, out *Outcome) {
	if p.logs == nil {
		return
	}
	entry := &repository.ExtractionLog{
		Filename:         out.Filename,
		DocumentType:     string(out.DocumentType),
		ModelName:        out.Model,
		InputTokens:      out.Result.Usage.InputTokens,
		OutputTokens:     out.Result.Usage.OutputTokens,
		TotalTokens:      out.Result.Usage.TotalTokens,
		Confidence:       out.Result.Confidence,
		StructuredData:   out.Result.Data,
		ExtractedText:    truncateRunes(out.Text, logTextLimit),
		PageCount:        len(out.Pages),
		UsedOCR:          out.UsedOCR,
		ProcessingTimeMs: out.ElapsedMs,
		Status:           constants.LogStatusSuccess,
	}
	if out.PDF != nil && out.PDF.PageCount > 0 {
		entry.PageCount = out.PDF.PageCount
	}
	if !out.Result.Success {
		entry.Status = constants.LogStatusError
		entry.ErrorMessage = out.Result.Error
	}
	if out.Original != nil {
		entry.OriginalKey, entry.OriginalURL = out.Original.Key, out.Original.URL
	}
	if out.Preview != nil {
		entry.PreviewKey, entry.PreviewURL = out.Preview.Key, out.Preview.URL
	}
	if err := p.logs.Create(ctx, entry); err != nil {
		p.logger.Error("pipeline.persist.failed", "req_id", common.RequestIDFromContext(ctx), "err", err)
		return
	}
	out.LogID = entry.ID
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
