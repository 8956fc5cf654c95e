package common

import (
	"errors"
	"testing"
	"time"
)

func TestParseYMD(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2025-03-10", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), false},
		{" 2024-02-29 ", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), false},
		{"2025-02-30", time.Time{}, true},
		{"10/03/2025", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := ParseYMD(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ParseYMD(%q) err = %v, want ErrInvalidInput", tt.in, err)
			}
			continue
		}
		if err != nil || !got.Equal(tt.want) {
			t.Errorf("ParseYMD(%q) = %v, %v", tt.in, got, err)
		}
	}

	if p, err := ParseOptionalYMD(""); p != nil || err != nil {
		t.Errorf("ParseOptionalYMD(\"\") = %v, %v", p, err)
	}
}
