package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

// TextractAPI is the subset of the Textract client we call.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// TextractEngine sends page images to AWS Textract and keeps LINE blocks.
type TextractEngine struct {
	api    TextractAPI
	logger *slog.Logger
}

func NewTextractEngine(cfg aws.Config, logger *slog.Logger) *TextractEngine {
	return NewTextractEngineWithAPI(textract.NewFromConfig(cfg), logger)
}

func NewTextractEngineWithAPI(api TextractAPI, logger *slog.Logger) *TextractEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextractEngine{api: api, logger: logger}
}

func (e *TextractEngine) Name() string { return "textract" }

func (e *TextractEngine) Recognize(ctx context.Context, image []byte) (Result, error) {
	if err := checkImage(image); err != nil {
		e.logger.Warn("ocr.textract.rejected", "bytes", len(image), "error", err)
		return Result{}, err
	}
	start := time.Now()

	out, err := e.api.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: image},
	})
	if err != nil {
		e.logger.Error("ocr.textract.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return Result{}, fmt.Errorf("%w: textract: %v", common.ErrOCRUnavailable, err)
	}

	var lines []string
	for _, b := range out.Blocks {
		if b.BlockType != types.BlockTypeLine {
			continue
		}
		lines = append(lines, aws.ToString(b.Text))
	}

	e.logger.Debug("ocr.textract.ok",
		"lines", len(lines),
		"blocks", len(out.Blocks),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return newResult(e.Name(), lines), nil
}
