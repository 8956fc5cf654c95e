package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

var reFence = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\r?\n?(.*?)```")

// ExtractJSON pulls the JSON object out of model content: the body of the
// first fenced block if any, then the span from the first '{' to the last '}'.
func ExtractJSON(content string) string {
	s := strings.TrimSpace(content)
	if m := reFence.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// ParseJSON repairs and decodes content into an object. Anything that does
// not decode to a JSON object is ErrMalformedJSON.
func ParseJSON(content string) (map[string]any, error) {
	cleaned := ExtractJSON(content)
	if cleaned == "" {
		return nil, common.NewAppError(common.CodeMalformed, "empty content", common.ErrMalformedJSON)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(cleaned), &m); err != nil {
		return nil, common.NewAppError(common.CodeMalformed, fmt.Sprintf("decode: %v", err), common.ErrMalformedJSON)
	}
	if m == nil {
		return nil, common.NewAppError(common.CodeMalformed, "not a JSON object", common.ErrMalformedJSON)
	}
	return m, nil
}

// Snippet shortens content for logs.
func Snippet(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
