package llm

import (
	"log/slog"
	"strings"
)

// CleanNulls trims string leaves and turns blank or "null" strings into real
// nulls, in place. It returns the dotted paths it changed.
func CleanNulls(data map[string]any, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	var changed []string
	cleanMap(data, "", &changed)
	if len(changed) > 0 {
		logger.Debug("llm.sanitize.nulls", "changed", changed)
	}
	return changed
}

func cleanMap(m map[string]any, prefix string, changed *[]string) {
	for k, v := range m {
		path := join(prefix, k)
		switch t := v.(type) {
		case string:
			s := strings.TrimSpace(t)
			switch {
			case s == "" || strings.EqualFold(s, "null"):
				m[k] = nil
				*changed = append(*changed, path)
			case s != t:
				m[k] = s
			}
		case map[string]any:
			cleanMap(t, path, changed)
		case []any:
			for i, item := range t {
				switch it := item.(type) {
				case map[string]any:
					cleanMap(it, path, changed)
				case string:
					t[i] = strings.TrimSpace(it)
				}
			}
		}
	}
}
