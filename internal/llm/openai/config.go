package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/llm"
)

// Config for the chat/completions client.
type Config struct {
	APIKey      string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g., "gpt-4o-mini"
	Temperature float32       // default 0.1
	MaxTokens   int           // default 1500
	Timeout     time.Duration // per call, default 30s
}

type Client struct {
	cfg    Config
	http   *http.Client
	tokens *llm.TokenCounter
	logger *slog.Logger
}

var _ llm.Structurer = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout + 5*time.Second},
		tokens: llm.NewTokenCounter(logger),
		logger: logger,
	}
}
