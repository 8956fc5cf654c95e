// Package vertex structures documents with Gemini on Vertex AI.
package vertex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/google/uuid"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/llm"
)

type Config struct {
	Project     string
	Location    string // default us-central1
	Model       string // default gemini-1.5-flash
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// generator is the slice of *genai.GenerativeModel the client needs.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Client struct {
	cfg    Config
	model  generator
	base   *genai.Client
	tokens *llm.TokenCounter
	logger *slog.Logger
}

var _ llm.Structurer = (*Client)(nil)

// NewClient dials Vertex AI and configures a JSON-only model.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	cfg = withDefaults(cfg)
	if cfg.Project == "" {
		return nil, common.NewAppError(common.CodeConfig, "vertex project is required", common.ErrInvalidInput)
	}
	base, err := genai.NewClient(ctx, cfg.Project, cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := base.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(llm.SystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(cfg.Temperature),
		MaxOutputTokens:  genai.Ptr(int32(cfg.MaxTokens)),
	}

	c := newClient(cfg, model, logger)
	c.base = base
	return c, nil
}

func newClient(cfg Config, model generator, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    withDefaults(cfg),
		model:  model,
		tokens: llm.NewTokenCounter(logger),
		logger: logger,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Location == "" {
		cfg.Location = "us-central1"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
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
	return cfg
}

func (c *Client) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}

// Structure sends prompt to Gemini and parses the reply as JSON.
func (c *Client) Structure(ctx context.Context, prompt string) (llm.Completion, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()

	ctx, cancel := common.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.logger.Info("llm.structure.start", "req_id", rid, "provider", "vertex", "model", c.cfg.Model, "prompt_len", len(prompt))

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		c.logger.Error("llm.structure.vertex_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.Completion{}, common.NewAppError(common.CodeCompletion, "generate content", fmt.Errorf("%w: %v", common.ErrCompletionFailure, err))
	}

	content := responseText(resp)
	if content == "" {
		c.logger.Error("llm.structure.empty_content", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.Completion{}, common.NewAppError(common.CodeCompletion, "empty content", common.ErrCompletionFailure)
	}

	var usage llm.Usage
	if um := resp.UsageMetadata; um != nil && (um.PromptTokenCount > 0 || um.CandidatesTokenCount > 0) {
		usage = llm.NewUsage(int(um.PromptTokenCount), int(um.CandidatesTokenCount))
	} else {
		usage = c.tokens.Estimate(llm.SystemPrompt+"\n"+prompt, content)
		c.logger.Warn("llm.structure.usage_estimated", "req_id", rid, "total_tokens", usage.TotalTokens)
	}

	out := llm.Completion{Usage: usage, Raw: content, Model: c.cfg.Model}
	data, err := llm.ParseJSON(content)
	if err != nil {
		c.logger.Error("llm.structure.malformed_json",
			"req_id", rid, "error", err,
			"content", llm.Snippet(content, 500),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return out, err
	}
	out.Data = data

	c.logger.Info("llm.structure.ok",
		"req_id", rid,
		"model", c.cfg.Model,
		"fields", len(data),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
