package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/ocr"
)

// PDF reads the text layer in process and rasterizes through an external
// renderer that needs the bytes on disk.
type PDF struct {
	data       []byte
	reader     *pdf.Reader
	rasterizer ocr.Rasterizer

	mu sync.Mutex // guards reader

	spill     sync.Once
	spillPath string
	spillErr  error
}

func OpenPDF(data []byte, rasterizer ocr.Rasterizer) (*PDF, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", common.ErrTextExtraction, err)
	}
	return &PDF{data: data, reader: r, rasterizer: rasterizer}, nil
}

func (d *PDF) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reader.NumPage()
}

// PageText extracts the text layer of page i. Malformed content streams can
// panic inside the parser; those are reported as errors.
func (d *PDF) PageText(i int) (text string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: page %d: %v", common.ErrTextExtraction, i, r)
		}
	}()

	if i < 0 || i >= d.reader.NumPage() {
		return "", fmt.Errorf("%w: page %d out of range", common.ErrInvalidInput, i)
	}
	p := d.reader.Page(i + 1)
	if p.V.IsNull() {
		return "", nil
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("%w: page %d: %v", common.ErrTextExtraction, i, err)
	}
	return text, nil
}

func (d *PDF) RenderPage(ctx context.Context, i, dpi int) ([]byte, error) {
	if d.rasterizer == nil {
		return nil, fmt.Errorf("%w: no rasterizer configured", common.ErrOCRUnavailable)
	}
	path, err := d.path()
	if err != nil {
		return nil, err
	}
	return d.rasterizer.Render(ctx, path, i, dpi)
}

func (d *PDF) path() (string, error) {
	d.spill.Do(func() {
		f, err := os.CreateTemp("", "dx-doc-*.pdf")
		if err != nil {
			d.spillErr = err
			return
		}
		d.spillPath, d.spillErr = writeSpill(f, d.data)
	})
	return d.spillPath, d.spillErr
}

// writeSpill writes data to f and closes it. On failure the file is removed
// and no path is returned.
func writeSpill(f *os.File, data []byte) (string, error) {
	_, err := f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("%w: spill pdf: %v", common.ErrTextExtraction, err)
	}
	return f.Name(), nil
}

// Close removes the temporary copy used for rasterizing, if any.
func (d *PDF) Close() error {
	if d.spillPath == "" {
		return nil
	}
	return os.Remove(d.spillPath)
}
