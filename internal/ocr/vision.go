package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared/constant"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

const visionSystemPrompt = "Você transcreve documentos brasileiros digitalizados. " +
	"Retorne somente o texto visível, linha por linha, na ordem de leitura, sem comentários nem markdown."

type VisionConfig struct {
	APIKey  string
	BaseURL string // empty -> SDK default
	Model   string // default gpt-4o-mini
}

// VisionEngine transcribes page images with an OpenAI vision model.
type VisionEngine struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

func NewVisionEngine(cfg VisionConfig, logger *slog.Logger, opts ...option.RequestOption) *VisionEngine {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = slog.Default()
	}
	options := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &VisionEngine{
		client: openai.NewClient(options...),
		model:  cfg.Model,
		logger: logger,
	}
}

func (e *VisionEngine) Name() string { return "openai-vision" }

func (e *VisionEngine) Recognize(ctx context.Context, image []byte) (Result, error) {
	if err := checkImage(image); err != nil {
		return Result{}, err
	}
	start := time.Now()

	dataURL := fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(image), base64.StdEncoding.EncodeToString(image))
	contentParts := []openai.ChatCompletionContentPartUnionParam{
		{
			OfText: &openai.ChatCompletionContentPartTextParam{
				Type: constant.Text("text"),
				Text: "Transcreva o texto desta página.",
			},
		},
		{
			OfImageURL: &openai.ChatCompletionContentPartImageParam{
				Type: constant.ImageURL("image_url"),
				ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
					URL:    dataURL,
					Detail: "high",
				},
			},
		},
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(visionSystemPrompt),
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: contentParts,
					},
				},
			},
		},
		Model:       e.model,
		MaxTokens:   openai.Int(2048),
		Temperature: openai.Float(0),
	}

	completion, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		e.logger.Error("ocr.vision.failed", "model", e.model, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return Result{}, fmt.Errorf("%w: vision: %v", common.ErrOCRUnavailable, err)
	}
	if len(completion.Choices) == 0 {
		return Result{}, fmt.Errorf("%w: vision: no choices", common.ErrOCRUnavailable)
	}

	text := Normalize(completion.Choices[0].Message.Content)
	e.logger.Debug("ocr.vision.ok",
		"model", e.model,
		"prompt_tokens", completion.Usage.PromptTokens,
		"completion_tokens", completion.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return newResult(e.Name(), strings.Split(text, "\n")), nil
}
