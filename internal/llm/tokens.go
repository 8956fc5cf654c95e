package llm

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// TokenCounter estimates token counts when a provider omits usage. The BPE
// table loads on first use; if it cannot load, counts fall back to runes/4.
type TokenCounter struct {
	load   func() (*tiktoken.Tiktoken, error)
	once   sync.Once
	enc    *tiktoken.Tiktoken
	logger *slog.Logger
}

func NewTokenCounter(logger *slog.Logger) *TokenCounter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenCounter{
		load:   func() (*tiktoken.Tiktoken, error) { return tiktoken.GetEncoding(defaultEncoding) },
		logger: logger,
	}
}

// Count returns the estimated number of tokens in text.
func (t *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	t.once.Do(func() {
		enc, err := t.load()
		if err != nil {
			t.logger.Warn("llm.tokens.encoding_unavailable", "encoding", defaultEncoding, "error", err)
			return
		}
		t.enc = enc
	})
	if t.enc == nil {
		n := utf8.RuneCountInString(text) / 4
		if n == 0 {
			n = 1
		}
		return n
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Estimate builds a Usage from prompt and completion text.
func (t *TokenCounter) Estimate(prompt, completion string) Usage {
	return NewUsage(t.Count(prompt), t.Count(completion))
}
