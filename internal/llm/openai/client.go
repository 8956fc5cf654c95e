package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/llm"
)

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Structure sends prompt as the user message and parses the reply as JSON.
func (c *Client) Structure(ctx context.Context, prompt string) (llm.Completion, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
		ctx = common.WithRequestID(ctx, rid)
	}
	start := time.Now()

	ctx, cancel := common.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.logger.Info("llm.structure.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"max_tokens", c.cfg.MaxTokens,
		"prompt_len", len(prompt),
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"max_tokens":      c.cfg.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.SystemPrompt},
			{"role": "user", "content": prompt},
		},
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.structure.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if !errors.Is(err, common.ErrCompletionFailure) {
			err = fmt.Errorf("%w: %v", common.ErrCompletionFailure, err)
		}
		return llm.Completion{}, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.structure.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Completion{}, common.NewAppError(common.CodeCompletion, "decode response", fmt.Errorf("%w: %v", common.ErrCompletionFailure, err))
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.structure.no_choices", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.Completion{}, common.NewAppError(common.CodeCompletion, "no choices in response", common.ErrCompletionFailure)
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	if content == "" {
		c.logger.Error("llm.structure.empty_content", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.Completion{}, common.NewAppError(common.CodeCompletion, "empty content", common.ErrCompletionFailure)
	}

	var usage llm.Usage
	if cc.Usage != nil {
		usage = llm.NewUsage(cc.Usage.PromptTokens, cc.Usage.CompletionTokens)
	} else {
		usage = c.tokens.Estimate(llm.SystemPrompt+"\n"+prompt, content)
		c.logger.Warn("llm.structure.usage_estimated", "req_id", rid, "total_tokens", usage.TotalTokens)
	}

	model := cc.Model
	if model == "" {
		model = c.cfg.Model
	}
	out := llm.Completion{Usage: usage, Raw: content, Model: model}

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
		"model", model,
		"fields", len(data),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
