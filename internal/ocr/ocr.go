package ocr

import (
	"context"
	"fmt"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

// MaxImageBytes is the largest image any engine accepts.
const MaxImageBytes = 5 << 20

// ErrImageTooLarge is returned before calling a provider with an oversized image.
var ErrImageTooLarge = fmt.Errorf("%w: image exceeds %d bytes", common.ErrOCRUnavailable, MaxImageBytes)

// Engine turns a raster image into text lines.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (Result, error)
}

// Result is what an engine detected, lines in reading order.
type Result struct {
	Engine string
	Lines  []string
	Text   string // Lines joined with "\n"
}

func newResult(engine string, lines []string) Result {
	return Result{Engine: engine, Lines: lines, Text: JoinLines(lines)}
}

func checkImage(image []byte) error {
	if len(image) == 0 {
		return fmt.Errorf("%w: empty image", common.ErrOCRUnavailable)
	}
	if len(image) > MaxImageBytes {
		return ErrImageTooLarge
	}
	return nil
}
