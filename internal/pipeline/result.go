package pipeline

import (
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/llm"
)

// StructuredResult is the canonical outcome of structuring one document.
// Confidence is meaningful only when Success is true and Data is non-empty.
type StructuredResult struct {
	Success    bool           `json:"success"`
	Data       map[string]any `json:"data"`
	Usage      llm.Usage      `json:"usage"`
	Confidence float64        `json:"confidence"`
	Error      string         `json:"error,omitempty"`
}

// Failure builds a failed result. usage is kept when a completion call was
// actually made.
func Failure(err error, usage llm.Usage) StructuredResult {
	msg := "no data extracted"
	if err != nil {
		msg = err.Error()
	}
	return enforce(StructuredResult{Success: false, Usage: usage, Error: msg})
}

// Envelope renders the wrapper shape older clients expect:
// {success, data: {data, usage, confidence}, error}.
func (r StructuredResult) Envelope() map[string]any {
	out := map[string]any{
		"success": r.Success,
		"data": map[string]any{
			"data":       r.Data,
			"usage":      usageMap(r.Usage),
			"confidence": r.Confidence,
		},
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return out
}

// Map renders the canonical flat shape with plain map and slice values.
func (r StructuredResult) Map() map[string]any {
	out := map[string]any{
		"success":    r.Success,
		"data":       r.Data,
		"usage":      usageMap(r.Usage),
		"confidence": r.Confidence,
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return out
}

func usageMap(u llm.Usage) map[string]any {
	return map[string]any{
		"input_tokens":  u.InputTokens,
		"output_tokens": u.OutputTokens,
		"total_tokens":  u.TotalTokens,
	}
}
