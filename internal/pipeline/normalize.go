package pipeline

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/llm"
)

var errUnknownShape = errors.New("unrecognized result shape")

// Normalize reconciles every response shape the service has emitted into a
// StructuredResult. Accepted inputs:
//
//   - StructuredResult or *StructuredResult
//   - the flat map {success, data, usage, confidence, error}
//   - the wrapper {success, data: {data, usage, confidence}, error}
//   - an envelope whose data holds another {data: ...} level
//   - a bare data map with no envelope at all
//
// Maps may also arrive as a JSON string or []byte. Normalize is idempotent.
func Normalize(raw any) StructuredResult {
	switch v := raw.(type) {
	case nil:
		return Failure(nil, llm.Usage{})
	case StructuredResult:
		return enforce(v)
	case *StructuredResult:
		if v == nil {
			return Failure(nil, llm.Usage{})
		}
		return enforce(*v)
	}

	m, ok := asMap(raw)
	if !ok {
		return Failure(errUnknownShape, llm.Usage{})
	}
	return enforce(fromMap(m))
}

func fromMap(m map[string]any) StructuredResult {
	_, hasSuccess := m["success"]
	inner := m["data"]
	if !hasSuccess && !isEnvelope(m) {
		// bare payload; "data" may be a field of its own (a date)
		return StructuredResult{Success: len(m) > 0, Data: m}
	}

	r := StructuredResult{Error: asString(m["error"])}
	innerMap, innerIsMap := asMap(inner)

	_, flatUsage := m["usage"]
	switch {
	case flatUsage:
		r.Data = innerMap
		r.Usage = asUsage(m["usage"])
		r.Confidence = asFloat(m["confidence"])
	case innerIsMap && hasKey(innerMap, "usage"):
		r.Data, _ = asMap(innerMap["data"])
		r.Usage = asUsage(innerMap["usage"])
		r.Confidence = asFloat(innerMap["confidence"])
	case innerIsMap && hasKey(innerMap, "data"):
		r.Data, _ = asMap(innerMap["data"])
		r.Confidence = asFloat(innerMap["confidence"])
	default:
		r.Data = innerMap
		r.Confidence = asFloat(m["confidence"])
	}

	if hasSuccess {
		r.Success = asBool(m["success"])
	} else {
		r.Success = len(r.Data) > 0 && r.Error == ""
	}
	return r
}

// enforce applies the result invariants. It is idempotent.
func enforce(r StructuredResult) StructuredResult {
	if r.Data == nil {
		r.Data = map[string]any{}
	}

	r.Usage.InputTokens = max(r.Usage.InputTokens, 0)
	r.Usage.OutputTokens = max(r.Usage.OutputTokens, 0)
	if sum := r.Usage.InputTokens + r.Usage.OutputTokens; sum > 0 {
		r.Usage.TotalTokens = sum
	}
	r.Usage.TotalTokens = max(r.Usage.TotalTokens, 0)

	if math.IsNaN(r.Confidence) {
		r.Confidence = 0
	}
	r.Confidence = min(max(r.Confidence, 0), 1)

	if !r.Success {
		r.Data = map[string]any{}
		r.Confidence = 0
		if r.Error == "" {
			r.Error = "no data extracted"
		}
		return r
	}
	r.Error = ""
	if len(r.Data) == 0 {
		r.Confidence = 0
	}
	return r
}

var envelopeKeys = map[string]bool{"data": true, "usage": true, "confidence": true, "error": true}

// isEnvelope reports whether m, lacking a success flag, still reads as a
// wrapper: a mapping under "data" and no keys besides the envelope ones.
func isEnvelope(m map[string]any) bool {
	if _, ok := asMap(m["data"]); !ok {
		return false
	}
	for k := range m {
		if !envelopeKeys[k] {
			return false
		}
	}
	return true
}

func hasKey(m map[string]any, k string) bool {
	_, ok := m[k]
	return ok
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case string:
		return decodeMap([]byte(t))
	case []byte:
		return decodeMap(t)
	case json.RawMessage:
		return decodeMap(t)
	}
	return nil, false
}

func decodeMap(b []byte) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case error:
		return t.Error()
	}
	return ""
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	}
	return false
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	}
	return 0
}

func asInt(v any) int {
	return int(math.Round(asFloat(v)))
}

// asUsage accepts the canonical keys and the OpenAI prompt/completion names.
func asUsage(v any) llm.Usage {
	switch t := v.(type) {
	case llm.Usage:
		return t
	case *llm.Usage:
		if t != nil {
			return *t
		}
		return llm.Usage{}
	}
	m, ok := asMap(v)
	if !ok {
		return llm.Usage{}
	}
	u := llm.Usage{
		InputTokens:  asInt(firstOf(m, "input_tokens", "prompt_tokens")),
		OutputTokens: asInt(firstOf(m, "output_tokens", "completion_tokens")),
		TotalTokens:  asInt(m["total_tokens"]),
	}
	return u
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}
