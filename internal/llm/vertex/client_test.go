package vertex

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"

	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

type fakeModel struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeModel) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	return f.resp, f.err
}

func textResponse(s string, in, out int32) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(s)}},
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: in, CandidatesTokenCount: out},
	}
}

func TestStructureOK(t *testing.T) {
	c := newClient(Config{Project: "p"}, &fakeModel{resp: textResponse(`{"nome":"ANA"}`, 120, 30)}, nil)
	got, err := c.Structure(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	if got.Data["nome"] != "ANA" {
		t.Fatalf("data = %v", got.Data)
	}
	if got.Usage.InputTokens != 120 || got.Usage.OutputTokens != 30 || got.Usage.TotalTokens != 150 {
		t.Fatalf("usage = %+v", got.Usage)
	}
	if got.Model != "gemini-1.5-flash" {
		t.Fatalf("model = %q", got.Model)
	}
}

func TestStructureErrors(t *testing.T) {
	tests := []struct {
		name string
		m    *fakeModel
		want error
	}{
		{"transport", &fakeModel{err: errors.New("unavailable")}, common.ErrCompletionFailure},
		{"no candidates", &fakeModel{resp: &genai.GenerateContentResponse{}}, common.ErrCompletionFailure},
		{"malformed", &fakeModel{resp: textResponse(`{"a":1,}`, 1, 1)}, common.ErrMalformedJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(Config{}, tt.m, nil)
			_, err := c.Structure(context.Background(), "prompt")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
