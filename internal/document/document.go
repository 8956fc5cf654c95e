package document

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/ocr"
)

// Document is a paged source the text assembler walks.
type Document interface {
	// PageCount returns the number of pages; zero is valid.
	PageCount() int
	// PageText returns the embedded text layer of page i (0-based).
	PageText(i int) (string, error)
	// RenderPage rasterizes page i at dpi and returns image bytes.
	RenderPage(ctx context.Context, i, dpi int) ([]byte, error)
}

// Open builds a Document for an upload based on its extension.
func Open(name string, data []byte, rasterizer ocr.Rasterizer) (Document, error) {
	switch constants.MapExtToFormat(filepath.Ext(name)) {
	case constants.PDF:
		return OpenPDF(data, rasterizer)
	case constants.IMAGE:
		return NewImage(data), nil
	default:
		return nil, fmt.Errorf("%w: unsupported file %q", common.ErrInvalidInput, name)
	}
}

// Close releases resources held by docs that need it.
func Close(d Document) error {
	if c, ok := d.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Image is a single page document with no text layer.
type Image struct {
	data []byte
}

func NewImage(data []byte) *Image { return &Image{data: data} }

func (im *Image) PageCount() int {
	if len(im.data) == 0 {
		return 0
	}
	return 1
}

func (im *Image) PageText(i int) (string, error) {
	if i != 0 {
		return "", fmt.Errorf("%w: image has no page %d", common.ErrInvalidInput, i)
	}
	return "", nil
}

// RenderPage returns the image as uploaded; dpi is ignored.
func (im *Image) RenderPage(_ context.Context, i, _ int) ([]byte, error) {
	if i != 0 {
		return nil, fmt.Errorf("%w: image has no page %d", common.ErrInvalidInput, i)
	}
	return im.data, nil
}
