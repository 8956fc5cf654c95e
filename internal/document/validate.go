package document

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

const (
	minPDFBytes = 100
	pointsToMM  = 25.4 / 72
)

var disableConfigDir sync.Once

func pdfcpuConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// Info describes a PDF upload.
type Info struct {
	PageCount int
	Encrypted bool
	Title     string
	Author    string
	Creator   string
	Producer  string
	// First page size in millimetres; zero when unknown.
	WidthMM  float64
	HeightMM float64
}

// ValidatePDF rejects uploads that are too small, lack the PDF header, fail
// structural validation, have no pages, or are encrypted. The info is
// returned even when the pages or encryption are rejected.
func ValidatePDF(data []byte) (Info, error) {
	info, err := ReadInfo(data)
	if err != nil {
		return info, err
	}
	if info.PageCount <= 0 {
		return info, fmt.Errorf("%w: pdf has no pages", common.ErrInvalidInput)
	}
	if info.Encrypted {
		return info, fmt.Errorf("%w: pdf is encrypted", common.ErrInvalidInput)
	}
	return info, nil
}

// ReadInfo validates the container and reports page count, metadata and the
// first page size.
func ReadInfo(data []byte) (Info, error) {
	if len(data) < minPDFBytes {
		return Info{}, fmt.Errorf("%w: pdf too small (%d bytes)", common.ErrInvalidInput, len(data))
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return Info{}, fmt.Errorf("%w: missing %%PDF- header", common.ErrInvalidInput)
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), pdfcpuConfig())
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "password") {
			return Info{Encrypted: true}, fmt.Errorf("%w: pdf is encrypted", common.ErrInvalidInput)
		}
		return Info{}, fmt.Errorf("%w: read pdf: %v", common.ErrInvalidInput, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return Info{}, fmt.Errorf("%w: invalid pdf: %v", common.ErrInvalidInput, err)
	}

	info := Info{
		PageCount: ctx.PageCount,
		Encrypted: ctx.Encrypt != nil,
		Title:     ctx.Title,
		Author:    ctx.Author,
		Creator:   ctx.Creator,
		Producer:  ctx.Producer,
	}
	if dims, err := ctx.PageDims(); err == nil && len(dims) > 0 {
		info.WidthMM = round1(dims[0].Width * pointsToMM)
		info.HeightMM = round1(dims[0].Height * pointsToMM)
	}
	return info, nil
}

// Preview renders the first page, typically at a low DPI, for thumbnails.
func Preview(ctx context.Context, d Document, dpi int) ([]byte, error) {
	if d.PageCount() == 0 {
		return nil, fmt.Errorf("%w: document has no pages", common.ErrInvalidInput)
	}
	if dpi <= 0 {
		dpi = 150
	}
	return d.RenderPage(ctx, 0, dpi)
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
