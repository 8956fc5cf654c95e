package common

import (
	"fmt"
	"strings"
	"time"
)

// ParseYMD parses a YYYY-MM-DD day as midnight UTC.
func ParseYMD(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, s)
	}
	return t, nil
}

// ParseOptionalYMD returns nil for an empty string.
func ParseOptionalYMD(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := ParseYMD(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
