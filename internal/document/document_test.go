package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

func TestOpenRoutesByExtension(t *testing.T) {
	d, err := Open("scan.JPG", []byte{0xff, 0xd8, 0xff}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := d.(*Image); !ok {
		t.Fatalf("got %T, want *Image", d)
	}

	if _, err := Open("notes.docx", []byte("x"), nil); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestImageDocument(t *testing.T) {
	im := NewImage([]byte("IMG"))
	if im.PageCount() != 1 {
		t.Fatalf("PageCount = %d", im.PageCount())
	}
	text, err := im.PageText(0)
	if err != nil || text != "" {
		t.Fatalf("PageText = %q, %v", text, err)
	}
	img, err := im.RenderPage(context.Background(), 0, 300)
	if err != nil || string(img) != "IMG" {
		t.Fatalf("RenderPage = %q, %v", img, err)
	}
	if _, err := im.RenderPage(context.Background(), 1, 300); err == nil {
		t.Fatal("expected error for page 1")
	}
	if NewImage(nil).PageCount() != 0 {
		t.Fatal("empty image should have zero pages")
	}
}

func TestReadInfoRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too small", []byte("%PDF-1.4")},
		{"no header", make([]byte, 200)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadInfo(tt.data); !errors.Is(err, common.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if _, err := ValidatePDF(tt.data); !errors.Is(err, common.ErrInvalidInput) {
				t.Fatalf("ValidatePDF err = %v", err)
			}
		})
	}
}

func TestPreviewEmptyDocument(t *testing.T) {
	if _, err := Preview(context.Background(), NewImage(nil), 150); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestWriteSpill(t *testing.T) {
	dir := t.TempDir()

	f, err := os.CreateTemp(dir, "ok-*.pdf")
	if err != nil {
		t.Fatal(err)
	}
	path, err := writeSpill(f, []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("writeSpill: %v", err)
	}
	if b, err := os.ReadFile(path); err != nil || string(b) != "%PDF-1.4" {
		t.Fatalf("spilled = %q, %v", b, err)
	}

	// a closed file makes the write fail
	bad, err := os.CreateTemp(dir, "bad-*.pdf")
	if err != nil {
		t.Fatal(err)
	}
	bad.Close()
	path, err = writeSpill(bad, []byte("%PDF-1.4"))
	if path != "" || !errors.Is(err, common.ErrTextExtraction) {
		t.Fatalf("writeSpill = %q, %v", path, err)
	}
	if _, err := os.Stat(bad.Name()); !os.IsNotExist(err) {
		t.Fatalf("failed spill left %s behind: %v", filepath.Base(bad.Name()), err)
	}
}
