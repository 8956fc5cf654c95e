package llm

import "context"

// Usage is the token accounting of one completion call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// NewUsage derives the total from its parts.
func NewUsage(input, output int) Usage {
	return Usage{InputTokens: input, OutputTokens: output, TotalTokens: input + output}
}

// Completion is a parsed structuring response.
type Completion struct {
	Data  map[string]any
	Usage Usage
	Raw   string // model content before repair
	Model string
}

// Structurer turns a fully built prompt into a JSON object. Implementations
// wrap transport failures in common.ErrCompletionFailure and unparseable
// content in common.ErrMalformedJSON.
type Structurer interface {
	Structure(ctx context.Context, prompt string) (Completion, error)
}
