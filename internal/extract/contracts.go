package extract

import (
	"context"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/document"
)

// PageResult is the outcome for one page. It is never mutated after creation.
type PageResult struct {
	PageIndex  int
	DirectText string
	UsedOCR    bool
	FinalText  string
	OCREngine  string
	Warnings   []string
}

// TextAssembler turns a whole document into prompt-ready text.
type TextAssembler interface {
	Assemble(ctx context.Context, doc document.Document, pageLimit int) (string, []PageResult)
}

var _ TextAssembler = (*Assembler)(nil)
