package scoring

import (
	"fmt"
	"slices"
	"sort"

	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

// Check runs the shape checks for t: required paths present, document
// numbers with the right digit count and enumerated fields within their set.
// It does not verify check digits.
func Check(data map[string]any, t constants.DocumentType) []common.ValidationError {
	v := common.NewValidator()
	for _, path := range requiredFields[t] {
		val, _ := Lookup(data, path)
		v.Field(path, val, common.Required)
	}

	rules := digitRules[t]
	paths := make([]string, 0, len(rules))
	for p := range rules {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, path := range paths {
		val, ok := Lookup(data, path)
		if !ok {
			continue
		}
		v.Field(path, val, digitsIn(rules[path]...))
	}

	enums := valueRules[t]
	paths = paths[:0]
	for p := range enums {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if val, ok := Lookup(data, path); ok && !IsEmpty(val) {
			v.Field(path, val, enums[path]...)
		}
	}
	return v.Errors()
}

func digitsIn(counts ...int) common.ValidationRule {
	return func(field string, value any) *common.ValidationError {
		if IsEmpty(value) {
			return nil
		}
		if len(counts) == 1 {
			return common.DigitCount(counts[0])(field, value)
		}
		s, ok := value.(string)
		if !ok {
			return nil
		}
		if n := len(common.OnlyDigits(s)); !slices.Contains(counts, n) {
			return &common.ValidationError{
				Field:   field,
				Value:   value,
				Message: fmt.Sprintf("must have one of %v digits, got %d", counts, n),
			}
		}
		return nil
	}
}
