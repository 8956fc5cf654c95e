package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/llm"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/scoring"
)

var errNoText = common.NewAppError(common.CodeExtraction, "no text extracted from document", common.ErrTextExtraction)

// Service turns assembled document text into a StructuredResult. It never
// returns an error: every failure becomes a failed result.
type Service struct {
	registry   *llm.Registry
	structurer llm.Structurer
	logger     *slog.Logger
}

func NewService(registry *llm.Registry, structurer llm.Structurer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: registry, structurer: structurer, logger: logger}
}

// Structure routes text to the schema for docType, asks the structurer for a
// JSON object and scores it.
func (s *Service) Structure(ctx context.Context, text, docType string) StructuredResult {
	res, _ := s.structure(ctx, text, docType)
	return res
}

// structure also reports the model that answered, for the extraction log.
func (s *Service) structure(ctx context.Context, text, docType string) (StructuredResult, string) {
	start := time.Now()
	reqID := common.RequestIDFromContext(ctx)
	logger := s.logger
	if name := common.FilenameFromContext(ctx); name != "" {
		logger = logger.With("filename", name)
	}

	schema, err := s.registry.Lookup(docType)
	if err != nil {
		logger.Error("pipeline.structure.route_failed", "req_id", reqID, "document_type", docType, "err", err)
		return Failure(err, llm.Usage{}), ""
	}
	if strings.TrimSpace(text) == "" {
		logger.Warn("pipeline.structure.empty_text", "req_id", reqID, "document_type", schema.DocumentType)
		return Failure(errNoText, llm.Usage{}), ""
	}

	prompt := schema.Prompt(text)
	logger.Info("pipeline.structure.start",
		"req_id", reqID,
		"document_type", schema.DocumentType,
		"kind", schema.Kind,
		"text_chars", len([]rune(text)),
		"prompt_chars", len([]rune(prompt)),
	)

	comp, err := s.structurer.Structure(ctx, prompt)
	if err != nil {
		logger.Error("pipeline.structure.failed",
			"req_id", reqID,
			"document_type", schema.DocumentType,
			"tokens", comp.Usage.TotalTokens,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"err", err,
		)
		return Failure(err, comp.Usage), comp.Model
	}
	llm.CleanNulls(comp.Data, logger)
	if verr := schema.Validate(comp.Data); verr != nil {
		logger.Warn("pipeline.structure.schema_mismatch", "req_id", reqID, "document_type", schema.DocumentType, "err", verr)
	}

	res := enforce(StructuredResult{
		Success:    true,
		Data:       comp.Data,
		Usage:      comp.Usage,
		Confidence: scoring.Score(comp.Data, schema.DocumentType),
	})
	logger.Info("pipeline.structure.ok",
		"req_id", reqID,
		"document_type", schema.DocumentType,
		"model", comp.Model,
		"confidence", res.Confidence,
		"tokens", res.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, comp.Model
}

// Registry exposes the routing table for callers that list types.
func (s *Service) Registry() *llm.Registry { return s.registry }
