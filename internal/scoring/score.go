package scoring

import (
	"math"
	"strings"

	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
)

const (
	completenessWeight = 0.2
	genericCap         = 0.8
)

// Score rates how complete a structured record is for its type, in [0, 1]
// rounded to three decimals.
//
// With required fields: base is the share of required paths present and
// non-empty, plus a bonus of 0.2 times the share of non-empty leaves. Without
// required fields: the share of non-empty leaves, capped at 0.8.
func Score(data map[string]any, t constants.DocumentType) float64 {
	if len(data) == 0 {
		return 0
	}
	filled, total := countLeaves(data)
	if total == 0 {
		return 0
	}
	ratio := float64(filled) / float64(total)

	required := requiredFields[t]
	var score float64
	if len(required) == 0 {
		score = math.Min(ratio, genericCap)
	} else {
		present := 0
		for _, path := range required {
			if v, ok := Lookup(data, path); ok && !IsEmpty(v) {
				present++
			}
		}
		base := float64(present) / float64(len(required))
		score = base + completenessWeight*ratio
	}
	return round3(math.Min(1, score))
}

// Lookup resolves a dotted path through nested maps.
func Lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// IsEmpty treats nil, blank or "null" strings, empty lists and maps without
// any non-empty leaf as empty. Numbers and booleans always count as filled.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(t)
		return s == "" || strings.EqualFold(s, "null")
	case []any:
		return len(t) == 0
	case map[string]any:
		filled, _ := countLeaves(t)
		return filled == 0
	default:
		return false
	}
}

// countLeaves walks nested maps; lists and scalars are single leaves and an
// empty map counts as one empty leaf.
func countLeaves(m map[string]any) (filled, total int) {
	for _, v := range m {
		if sub, ok := v.(map[string]any); ok && len(sub) > 0 {
			f, n := countLeaves(sub)
			filled += f
			total += n
			continue
		}
		total++
		if !IsEmpty(v) {
			filled++
		}
	}
	return filled, total
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
