package server

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/async"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/pipeline"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/repository"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	// MaxUploadBytes bounds a decoded Extract payload.
	MaxUploadBytes = 25 << 20
)

type Processor interface {
	Process(ctx context.Context, up pipeline.Upload) (pipeline.Outcome, error)
}

type Structurer interface {
	Structure(ctx context.Context, text, docType string) pipeline.StructuredResult
}

// JobQueue is the async side of Extract.
type JobQueue interface {
	Enqueue(ctx context.Context, job async.Job) (uuid.UUID, error)
	State(id uuid.UUID) (async.JobState, bool)
}

type Exporter interface {
	ExportLogsXLSX(ctx context.Context, filter repository.LogFilter) ([]byte, error)
}

// Deps are the collaborators of ExtractorService. Queue, Logs, Exporter and
// Store may be nil; RPCs that need a missing one return FailedPrecondition.
type Deps struct {
	Processor  Processor
	Structurer Structurer
	Queue      JobQueue
	Logs       repository.ExtractionLogRepository
	Exporter   Exporter
	Store      storage.BlobStore
	PresignTTL time.Duration
}

type ExtractorService struct {
	UnimplementedExtractorServiceServer
	deps   Deps
	logger *slog.Logger
}

var _ ExtractorServiceServer = (*ExtractorService)(nil)

func NewExtractorService(deps Deps, logger *slog.Logger) *ExtractorService {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.PresignTTL <= 0 {
		deps.PresignTTL = time.Hour
	}
	return &ExtractorService{deps: deps, logger: logger}
}

// Extract expects {filename, content (base64), document_type?, page_limit?, async?}.
func (s *ExtractorService) Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := req.AsMap()
	filename := strings.TrimSpace(str(in, "filename"))
	if filename == "" {
		return nil, common.InvalidArgumentError("filename is required")
	}
	encoded := str(in, "content")
	if encoded == "" {
		return nil, common.InvalidArgumentError("content is required")
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxUploadBytes {
		return nil, common.InvalidArgumentErrorf("content exceeds %d bytes", MaxUploadBytes)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		s.logger.Error("server.extract.bad_content", "filename", filename, "error", err)
		return nil, common.InvalidArgumentErrorf("content must be base64: %v", err)
	}
	up := pipeline.Upload{
		Filename:     filename,
		Data:         data,
		DocumentType: str(in, "document_type"),
		PageLimit:    num(in, "page_limit"),
	}

	if b, _ := in["async"].(bool); b {
		if s.deps.Queue == nil {
			return nil, common.FailedPreconditionError("async extraction is not enabled")
		}
		id, err := s.deps.Queue.Enqueue(ctx, async.Job{Upload: up})
		if err != nil {
			s.logger.Error("server.extract.enqueue_failed", "filename", filename, "error", err)
			return nil, toStatus(err)
		}
		s.logger.Info("server.extract.enqueued", "filename", filename, "job_id", id)
		return structpb.NewStruct(map[string]any{
			"job_id": id.String(),
			"status": string(constants.JobStatusQueued),
		})
	}

	out, err := s.deps.Processor.Process(ctx, up)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(s.outcomeMap(ctx, out))
}

// Structure expects {text, document_type} and skips text extraction.
func (s *ExtractorService) Structure(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := req.AsMap()
	docType := strings.TrimSpace(str(in, "document_type"))
	if docType == "" {
		return nil, common.InvalidArgumentError("document_type is required")
	}
	res := s.deps.Structurer.Structure(ctx, str(in, "text"), docType)
	return structpb.NewStruct(res.Map())
}

// Normalize accepts {result: <any historical shape>, envelope?}, or the
// shape itself.
func (s *ExtractorService) Normalize(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := req.AsMap()
	var raw any = in
	if r, ok := in["result"]; ok {
		raw = r
	}
	res := pipeline.Normalize(raw)
	out := map[string]any{"result": res.Map()}
	if b, _ := in["envelope"].(bool); b {
		out["envelope"] = res.Envelope()
	}
	return structpb.NewStruct(out)
}

// Job reports an async job: {job_id}.
func (s *ExtractorService) Job(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.deps.Queue == nil {
		return nil, common.FailedPreconditionError("async extraction is not enabled")
	}
	id, err := uuid.Parse(str(req.AsMap(), "job_id"))
	if err != nil {
		return nil, common.InvalidArgumentError("job_id must be a UUID")
	}
	st, ok := s.deps.Queue.State(id)
	if !ok {
		return nil, common.NotFoundError("job not found")
	}
	out := map[string]any{
		"job_id":     st.ID.String(),
		"filename":   st.Filename,
		"status":     string(st.Status),
		"confidence": st.Confidence,
		"updated_at": st.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if st.LogID != uuid.Nil {
		out["log_id"] = st.LogID.String()
		if s.deps.Logs != nil && st.Status == constants.JobStatusDone {
			if l, err := s.deps.Logs.Get(ctx, st.LogID); err == nil {
				out["result"] = logResult(l).Map()
			} else {
				s.logger.Warn("server.job.log_lookup_failed", "log_id", st.LogID, "error", err)
			}
		}
	}
	if st.Error != "" {
		out["error"] = st.Error
	}
	return structpb.NewStruct(out)
}

// History expects {document_type?, status?, from?, to?, limit?, offset?,
// stats?, log_id?}. Dates are YYYY-MM-DD.
func (s *ExtractorService) History(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.deps.Logs == nil {
		return nil, common.FailedPreconditionError("history is not enabled")
	}
	in := req.AsMap()

	if raw := str(in, "log_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, common.InvalidArgumentError("log_id must be a UUID")
		}
		l, err := s.deps.Logs.Get(ctx, id)
		if err != nil {
			return nil, toStatus(err)
		}
		return structpb.NewStruct(map[string]any{"logs": []any{s.logMap(ctx, l)}, "total": 1})
	}

	filter, err := parseFilter(in)
	if err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	filter.Limit = min(filter.Limit, maxHistoryLimit)

	logs, err := s.deps.Logs.List(ctx, filter)
	if err != nil {
		s.logger.Error("server.history.list_failed", "error", err)
		return nil, toStatus(err)
	}
	total, err := s.deps.Logs.Count(ctx, filter)
	if err != nil {
		s.logger.Error("server.history.count_failed", "error", err)
		return nil, toStatus(err)
	}

	items := make([]any, 0, len(logs))
	for _, l := range logs {
		items = append(items, s.logMap(ctx, l))
	}
	out := map[string]any{
		"logs":   items,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	}
	if b, _ := in["stats"].(bool); b {
		st, err := s.deps.Logs.Stats(ctx, filter)
		if err != nil {
			return nil, toStatus(err)
		}
		out["stats"] = statsMap(st)
	}
	s.logger.Info("server.history.ok", "count", len(items), "total", total)
	return structpb.NewStruct(out)
}

// Export expects the History filters and returns {filename, content (base64 xlsx)}.
func (s *ExtractorService) Export(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.deps.Exporter == nil {
		return nil, common.FailedPreconditionError("export is not enabled")
	}
	filter, err := parseFilter(req.AsMap())
	if err != nil {
		return nil, err
	}
	b, err := s.deps.Exporter.ExportLogsXLSX(ctx, filter)
	if err != nil {
		s.logger.Error("server.export.failed", "error", err)
		return nil, toStatus(err)
	}
	name := "extractions_" + time.Now().UTC().Format("20060102_150405") + ".xlsx"
	s.logger.Info("server.export.ok", "bytes", len(b), "filename", name)
	return structpb.NewStruct(map[string]any{
		"filename":     name,
		"content_type": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"content":      base64.StdEncoding.EncodeToString(b),
	})
}

func (s *ExtractorService) outcomeMap(ctx context.Context, out pipeline.Outcome) map[string]any {
	m := out.Result.Map()
	m["filename"] = out.Filename
	m["document_type"] = string(out.DocumentType)
	m["model"] = out.Model
	m["used_ocr"] = out.UsedOCR
	m["elapsed_ms"] = out.ElapsedMs
	if out.LogID != uuid.Nil {
		m["log_id"] = out.LogID.String()
	}

	pages := make([]any, 0, len(out.Pages))
	for _, p := range out.Pages {
		warnings := make([]any, 0, len(p.Warnings))
		for _, w := range p.Warnings {
			warnings = append(warnings, w)
		}
		pages = append(pages, map[string]any{
			"page_index": p.PageIndex,
			"used_ocr":   p.UsedOCR,
			"ocr_engine": p.OCREngine,
			"chars":      len([]rune(p.FinalText)),
			"warnings":   warnings,
		})
	}
	m["pages"] = pages

	checks := make([]any, 0, len(out.Checks))
	for _, c := range out.Checks {
		checks = append(checks, map[string]any{"field": c.Field, "message": c.Message})
	}
	m["checks"] = checks

	if out.PDF != nil {
		m["pdf_info"] = map[string]any{
			"page_count": out.PDF.PageCount,
			"encrypted":  out.PDF.Encrypted,
			"title":      out.PDF.Title,
			"author":     out.PDF.Author,
			"producer":   out.PDF.Producer,
			"width_mm":   out.PDF.WidthMM,
			"height_mm":  out.PDF.HeightMM,
		}
	}
	if out.Original != nil {
		m["original_url"] = s.signed(ctx, out.Original.Key, out.Original.URL)
	}
	if out.Preview != nil {
		m["preview_url"] = s.signed(ctx, out.Preview.Key, out.Preview.URL)
	}
	return m
}

func (s *ExtractorService) logMap(ctx context.Context, l *repository.ExtractionLog) map[string]any {
	m := map[string]any{
		"id":                 l.ID.String(),
		"filename":           l.Filename,
		"document_type":      l.DocumentType,
		"model":              l.ModelName,
		"status":             string(l.Status),
		"page_count":         l.PageCount,
		"used_ocr":           l.UsedOCR,
		"processing_time_ms": l.ProcessingTimeMs,
		"created_at":         l.CreatedAt.UTC().Format(time.RFC3339),
		"result":             logResult(l).Map(),
	}
	if l.ErrorMessage != "" {
		m["error"] = l.ErrorMessage
	}
	if l.OriginalKey != "" {
		m["original_url"] = s.signed(ctx, l.OriginalKey, l.OriginalURL)
	}
	if l.PreviewKey != "" {
		m["preview_url"] = s.signed(ctx, l.PreviewKey, l.PreviewURL)
	}
	return m
}

// signed prefers a presigned URL and falls back to the stored public one.
func (s *ExtractorService) signed(ctx context.Context, key, fallback string) string {
	if s.deps.Store == nil || key == "" {
		return fallback
	}
	u, err := s.deps.Store.SignedURL(ctx, key, s.deps.PresignTTL)
	if err != nil {
		s.logger.Warn("server.storage.sign_failed", "key", key, "error", err)
		return fallback
	}
	return u
}

// logResult rebuilds the canonical result stored alongside a log row.
func logResult(l *repository.ExtractionLog) pipeline.StructuredResult {
	return pipeline.Normalize(map[string]any{
		"success":    l.Status == constants.LogStatusSuccess,
		"data":       l.StructuredData,
		"confidence": l.Confidence,
		"error":      l.ErrorMessage,
		"usage": map[string]any{
			"input_tokens":  l.InputTokens,
			"output_tokens": l.OutputTokens,
			"total_tokens":  l.TotalTokens,
		},
	})
}

func statsMap(st repository.LogStats) map[string]any {
	byType := make(map[string]any, len(st.ByType))
	for t, ts := range st.ByType {
		byType[t] = map[string]any{
			"count":          ts.Count,
			"success":        ts.Success,
			"total_tokens":   ts.TotalTokens,
			"avg_confidence": ts.AvgConfidence,
		}
	}
	return map[string]any{
		"total":          st.Total,
		"success":        st.Success,
		"errors":         st.Errors,
		"total_tokens":   st.TotalTokens,
		"avg_confidence": st.AvgConfidence,
		"by_type":        byType,
	}
}

func parseFilter(in map[string]any) (repository.LogFilter, error) {
	f := repository.LogFilter{
		Limit:  num(in, "limit"),
		Offset: max(num(in, "offset"), 0),
	}
	if dt := strings.TrimSpace(str(in, "document_type")); dt != "" {
		canon, ok := constants.Canonicalize(dt)
		if !ok {
			return f, common.InvalidArgumentErrorf("unknown document_type %q", dt)
		}
		f.DocumentType = string(canon)
	}
	if st := strings.ToUpper(strings.TrimSpace(str(in, "status"))); st != "" {
		switch constants.LogStatus(st) {
		case constants.LogStatusSuccess, constants.LogStatusError:
			f.Status = constants.LogStatus(st)
		default:
			return f, common.InvalidArgumentErrorf("status must be SUCCESS or ERROR, got %q", st)
		}
	}
	var err error
	if f.From, err = common.ParseOptionalYMD(str(in, "from")); err != nil {
		return f, common.InvalidArgumentErrorf("from: %v", err)
	}
	if f.To, err = common.ParseOptionalYMD(str(in, "to")); err != nil {
		return f, common.InvalidArgumentErrorf("to: %v", err)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, common.InvalidArgumentError("to must not be before from")
	}
	return f, nil
}

// toStatus maps sentinel errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrUnsupportedDocumentType):
		return common.InvalidArgumentError(err.Error())
	case errors.Is(err, common.ErrNotFound):
		return common.NotFoundError(err.Error())
	case errors.Is(err, async.ErrClosed):
		return common.UnavailableError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return common.DeadlineExceededError(err.Error())
	default:
		return common.InternalError(err.Error())
	}
}

func str(m map[string]any, k string) string {
	s, _ := m[k].(string)
	return s
}

// num reads a Struct number, which always arrives as float64.
func num(m map[string]any, k string) int {
	switch v := m[k].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int(v)
	case int:
		return v
	}
	return 0
}
