package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/extract"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/llm"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/llm/openai"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/ocr"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/repository"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/storage"
)

type fakeDoc struct{ texts []string }

func (d *fakeDoc) PageCount() int                 { return len(d.texts) }
func (d *fakeDoc) PageText(i int) (string, error) { return d.texts[i], nil }
func (d *fakeDoc) RenderPage(_ context.Context, i, _ int) ([]byte, error) {
	return []byte{byte(i)}, nil
}

type fakeEngine struct {
	calls atomic.Int32
	text  string
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Recognize(_ context.Context, _ []byte) (ocr.Result, error) {
	e.calls.Add(1)
	return ocr.Result{Engine: "fake", Text: e.text}, nil
}

// fakeStructurer answers every prompt with content run through the same
// repair step as the real clients.
type fakeStructurer struct {
	content string
	err     error

	mu      sync.Mutex
	prompts []string
}

func (f *fakeStructurer) Structure(_ context.Context, prompt string) (llm.Completion, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	usage := llm.NewUsage(500, 80)
	if f.err != nil {
		return llm.Completion{}, f.err
	}
	data, err := llm.ParseJSON(f.content)
	if err != nil {
		return llm.Completion{Usage: usage, Raw: f.content, Model: "fake-model"}, err
	}
	return llm.Completion{Data: data, Usage: usage, Raw: f.content, Model: "fake-model"}, nil
}

func newTestService(t *testing.T, s llm.Structurer) *Service {
	t.Helper()
	reg, err := llm.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return NewService(reg, s, nil)
}

func newAssembler(engine ocr.Engine) *extract.Assembler {
	return extract.NewAssembler(extract.NewPageExtractor(extract.Config{}, engine, nil), nil)
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestE2EDirectTextANTT(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{text: "should not be used"}
	doc := &fakeDoc{texts: []string{
		"CERTIFICADO ANTT - REGISTRO NACIONAL DE TRANSPORTADORES RODOVIARIOS DE CARGAS\nRNTRC: 12345\nRAZAO SOCIAL: TRANSPORTES X LTDA",
	}}

	text, pages := newAssembler(engine).Assemble(ctx, doc, 0)
	if engine.calls.Load() != 0 {
		t.Fatalf("OCR called %d times for a text page", engine.calls.Load())
	}
	if len(pages) != 1 || pages[0].UsedOCR {
		t.Fatalf("pages = %+v", pages)
	}

	fs := &fakeStructurer{content: `{"tipo_documento":"CERTIFICADO_ANTT","transportador":{"rntrc":"12345","razao_social_nome":"TRANSPORTES X LTDA","cpf_cnpj":null}}`}
	res := newTestService(t, fs).Structure(ctx, text, "ANTT")

	if !res.Success {
		t.Fatalf("Structure failed: %s", res.Error)
	}
	if len(fs.prompts) != 1 {
		t.Fatalf("prompts = %d", len(fs.prompts))
	}
	if !strings.Contains(fs.prompts[0], "Certificado ou Extrato ANTT") || !strings.Contains(fs.prompts[0], "RNTRC: 12345") {
		t.Fatalf("prompt not built from ANTT template:\n%s", fs.prompts[0])
	}
	// required 2/3 + 0.2 * (3 of 4 leaves filled)
	if !approx(res.Confidence, 0.817) {
		t.Fatalf("confidence = %v, want 0.817", res.Confidence)
	}
	if res.Usage != llm.NewUsage(500, 80) {
		t.Fatalf("usage = %+v", res.Usage)
	}
}

func TestE2EScannedPageUsesOCR(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{text: "NOME: JOAO\nCPF: 111.222.333-44"}
	doc := &fakeDoc{texts: []string{""}}

	text, pages := newAssembler(engine).Assemble(ctx, doc, 0)
	if engine.calls.Load() != 1 {
		t.Fatalf("OCR calls = %d, want 1", engine.calls.Load())
	}
	if !pages[0].UsedOCR {
		t.Fatal("page should be marked as OCR")
	}
	if !strings.Contains(text, "NOME: JOAO\nCPF: 111.222.333-44") {
		t.Fatalf("assembled text missing OCR output: %q", text)
	}

	fs := &fakeStructurer{content: `{"nome":"JOAO","cpf":"111.222.333-44"}`}
	res := newTestService(t, fs).Structure(ctx, text, "CPF")
	if !res.Success || res.Confidence <= 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestE2EFencedMalformedJSON(t *testing.T) {
	content := "```json\n{\"nome\": \"JOAO\", \"cpf\": \"111.222.333-44\",}\n```"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "gpt-4o-mini",
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
			"usage":   map[string]any{"prompt_tokens": 700, "completion_tokens": 40},
		})
	}))
	defer srv.Close()

	client := openai.NewClient(openai.Config{APIKey: "test", BaseURL: srv.URL, Timeout: 5 * time.Second}, nil)
	res := newTestService(t, client).Structure(context.Background(), "NOME: JOAO CPF: 111.222.333-44", "CPF")

	if res.Success {
		t.Fatal("trailing comma JSON must not succeed")
	}
	if res.Confidence != 0 {
		t.Fatalf("confidence = %v", res.Confidence)
	}
	if res.Data == nil || len(res.Data) != 0 {
		t.Fatalf("data = %#v, want empty map", res.Data)
	}
	if res.Usage.TotalTokens != 740 {
		t.Fatalf("usage should be kept after a real call, got %+v", res.Usage)
	}
	if !strings.Contains(res.Error, common.CodeMalformed) {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestE2EVehicleSynonymsShareSchema(t *testing.T) {
	ctx := context.Background()
	reg, err := llm.NewRegistry(nil)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := reg.Lookup("VEICULO")
	fs := &fakeStructurer{content: `{"dados_veiculo":{"placa":"ABC1D23"}}`}
	svc := NewService(reg, fs, nil)

	for _, tag := range []string{"CRLV", "VEICULO", "CRV"} {
		got, err := reg.Lookup(tag)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", tag, err)
		}
		if got != want {
			t.Fatalf("Lookup(%s) returned a different schema", tag)
		}
		if res := svc.Structure(ctx, "PLACA ABC1D23", tag); !res.Success {
			t.Fatalf("Structure(%s): %s", tag, res.Error)
		}
	}
	for i := 1; i < len(fs.prompts); i++ {
		if fs.prompts[i] != fs.prompts[0] {
			t.Fatalf("prompt %d differs from prompt 0", i)
		}
	}
}

func TestStructureFailures(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		text      string
		s         *fakeStructurer
		wantCalls int
		wantUsage int
	}{
		{"empty text skips the call", "   \n", &fakeStructurer{content: `{"nome":"x"}`}, 0, 0},
		{"completion failure", "NOME: X", &fakeStructurer{err: fmt.Errorf("%w: 503", common.ErrCompletionFailure)}, 1, 0},
		{"malformed", "NOME: X", &fakeStructurer{content: "not json"}, 1, 580},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestService(t, tt.s).Structure(ctx, tt.text, "CNH")
			if res.Success || res.Confidence != 0 || len(res.Data) != 0 || res.Error == "" {
				t.Fatalf("result = %+v", res)
			}
			if len(tt.s.prompts) != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", len(tt.s.prompts), tt.wantCalls)
			}
			if res.Usage.TotalTokens != tt.wantUsage {
				t.Fatalf("usage = %+v", res.Usage)
			}
		})
	}
}

func TestStructureCleansNullStrings(t *testing.T) {
	fs := &fakeStructurer{content: `{"nome":"  JOAO ","cpf":"null","categoria":""}`}
	res := newTestService(t, fs).Structure(context.Background(), "NOME: JOAO", "CNH")
	if !res.Success {
		t.Fatal(res.Error)
	}
	if res.Data["nome"] != "JOAO" || res.Data["cpf"] != nil || res.Data["categoria"] != nil {
		t.Fatalf("data = %#v", res.Data)
	}
}

func TestStructureLogsCarryFilename(t *testing.T) {
	var buf bytes.Buffer
	reg, err := llm.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	svc := NewService(reg, &fakeStructurer{content: `{"nome":"JOAO"}`}, slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := common.WithFilename(context.Background(), "cnh_joao.pdf")
	if res := svc.Structure(ctx, "NOME: JOAO", "CNH"); !res.Success {
		t.Fatal(res.Error)
	}

	var lines int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		msg, _ := rec["msg"].(string)
		if !strings.HasPrefix(msg, "pipeline.structure.") {
			continue
		}
		lines++
		if rec["filename"] != "cnh_joao.pdf" {
			t.Fatalf("%s filename = %v", msg, rec["filename"])
		}
	}
	if lines < 2 {
		t.Fatalf("structure log lines = %d, want start and ok", lines)
	}
}

func TestNormalizeShapes(t *testing.T) {
	usage := llm.NewUsage(10, 5)
	tests := []struct {
		name string
		raw  any
		want StructuredResult
	}{
		{
			name: "nil",
			raw:  nil,
			want: StructuredResult{Data: map[string]any{}, Error: "no data extracted"},
		},
		{
			name: "wrapper",
			raw: map[string]any{
				"success": true,
				"data": map[string]any{
					"data":       map[string]any{"nome": "JOAO"},
					"usage":      map[string]any{"input_tokens": 10, "output_tokens": 5, "total_tokens": 15},
					"confidence": 0.9,
				},
			},
			want: StructuredResult{Success: true, Data: map[string]any{"nome": "JOAO"}, Usage: usage, Confidence: 0.9},
		},
		{
			name: "wrapper with prompt and completion token names",
			raw: map[string]any{
				"success": true,
				"data": map[string]any{
					"data":       map[string]any{"nome": "JOAO"},
					"usage":      map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
					"confidence": 0.9,
				},
			},
			want: StructuredResult{Success: true, Data: map[string]any{"nome": "JOAO"}, Usage: usage, Confidence: 0.9},
		},
		{
			name: "nested data without usage",
			raw: map[string]any{
				"success": true,
				"data":    map[string]any{"data": map[string]any{"cnpj": "1"}, "confidence": 0.5},
			},
			want: StructuredResult{Success: true, Data: map[string]any{"cnpj": "1"}, Confidence: 0.5},
		},
		{
			name: "envelope with bare data",
			raw:  map[string]any{"success": true, "data": map[string]any{"placa": "ABC1D23"}},
			want: StructuredResult{Success: true, Data: map[string]any{"placa": "ABC1D23"}},
		},
		{
			name: "bare payload",
			raw:  map[string]any{"nome": "JOAO"},
			want: StructuredResult{Success: true, Data: map[string]any{"nome": "JOAO"}},
		},
		{
			name: "bare payload with a date field",
			raw:  map[string]any{"data": "01/02/2024", "valor": "10,00", "nome": "JOAO"},
			want: StructuredResult{Success: true, Data: map[string]any{"data": "01/02/2024", "valor": "10,00", "nome": "JOAO"}},
		},
		{
			name: "bare payload with nested data and siblings",
			raw:  map[string]any{"data": map[string]any{"dia": "01"}, "valor": "10,00"},
			want: StructuredResult{Success: true, Data: map[string]any{"data": map[string]any{"dia": "01"}, "valor": "10,00"}},
		},
		{
			name: "envelope without success flag",
			raw:  map[string]any{"data": map[string]any{"nome": "JOAO"}, "confidence": 0.4},
			want: StructuredResult{Success: true, Data: map[string]any{"nome": "JOAO"}, Confidence: 0.4},
		},
		{
			name: "failure drops data",
			raw:  map[string]any{"success": false, "data": map[string]any{"nome": "x"}, "error": "boom", "confidence": 0.7},
			want: StructuredResult{Data: map[string]any{}, Error: "boom"},
		},
		{
			name: "confidence clamped",
			raw:  map[string]any{"success": true, "data": map[string]any{"a": "b"}, "usage": map[string]any{}, "confidence": 1.7},
			want: StructuredResult{Success: true, Data: map[string]any{"a": "b"}, Confidence: 1},
		},
		{
			name: "json string",
			raw:  `{"success":true,"data":{"nome":"JOAO"},"usage":{"input_tokens":10,"output_tokens":5},"confidence":0.4}`,
			want: StructuredResult{Success: true, Data: map[string]any{"nome": "JOAO"}, Usage: usage, Confidence: 0.4},
		},
		{
			name: "unknown type",
			raw:  42,
			want: StructuredResult{Data: map[string]any{}, Error: errUnknownShape.Error()},
		},
		{
			name: "pointer",
			raw:  &StructuredResult{Success: true, Data: map[string]any{"nome": "x"}, Usage: llm.Usage{InputTokens: 3, OutputTokens: 4, TotalTokens: 99}, Confidence: 0.2},
			want: StructuredResult{Success: true, Data: map[string]any{"nome": "x"}, Usage: llm.NewUsage(3, 4), Confidence: 0.2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Normalize = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []any{
		nil,
		map[string]any{"nome": "JOAO", "endereco": map[string]any{"cidade": "SP"}},
		map[string]any{"success": true, "data": map[string]any{"data": map[string]any{"nome": "A"}, "usage": map[string]any{"input_tokens": 3}, "confidence": 0.3}},
		map[string]any{"success": false, "error": "x"},
		// data that itself has a "data" key survives the flat shape
		StructuredResult{Success: true, Data: map[string]any{"data": "x"}, Confidence: 0.8},
		Failure(errors.New("timeout"), llm.NewUsage(100, 0)),
	}
	for i, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); !reflect.DeepEqual(twice, once) {
			t.Fatalf("#%d: Normalize(Normalize(x)) = %+v, want %+v", i, twice, once)
		}
		if env := Normalize(once.Envelope()); !reflect.DeepEqual(env, once) {
			t.Fatalf("#%d: Normalize(Envelope()) = %+v, want %+v", i, env, once)
		}
		if flat := Normalize(once.Map()); !reflect.DeepEqual(flat, once) {
			t.Fatalf("#%d: Normalize(Map()) = %+v, want %+v", i, flat, once)
		}
		b, err := json.Marshal(once)
		if err != nil {
			t.Fatal(err)
		}
		if fromJSON := Normalize(b); !reflect.DeepEqual(fromJSON, once) {
			t.Fatalf("#%d: Normalize(json) = %+v, want %+v", i, fromJSON, once)
		}
	}
}

func TestResolveType(t *testing.T) {
	tests := []struct {
		tag, filename string
		want          constants.DocumentType
	}{
		{"CNH", "anything.pdf", constants.CNH},
		{"crlv", "x.pdf", constants.Veiculo},
		{"", "certificado_antt_2024.pdf", constants.ANTT},
		{"GENERICO", "conta_luz.pdf", constants.Residencia},
		{"passaporte", "scan.png", constants.Generico},
	}
	for _, tt := range tests {
		if got := ResolveType(tt.tag, tt.filename); got != tt.want {
			t.Errorf("ResolveType(%q, %q) = %s, want %s", tt.tag, tt.filename, got, tt.want)
		}
	}
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStore) Put(_ context.Context, key string, data []byte, _ string) (storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return storage.Object{Key: key, URL: "mem://" + key, Size: int64(len(data))}, nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return b, nil
}

func (m *memStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "mem://" + key + "?signed", nil
}

func (m *memStore) List(context.Context, string, int) ([]storage.Object, error) { return nil, nil }
func (m *memStore) Delete(context.Context, string) error                        { return nil }

func openLogs(t *testing.T) repository.ExtractionLogRepository {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{
		Driver: repository.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "pipeline.db"),
	}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close(nil) })
	logs := repository.NewExtractionLogRepository(db.Driver, nil)
	if err := logs.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return logs
}

func TestProcessImageUpload(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{text: "NOME: JOAO DA SILVA\nCPF: 111.222.333-44\nCAT. HAB: B"}
	fs := &fakeStructurer{content: `{"nome":"JOAO DA SILVA","cpf":"111.222.333-44","categoria":"B"}`}
	store := &memStore{}
	logs := openLogs(t)

	p := NewProcessor(Config{}, newAssembler(engine), newTestService(t, fs), nil, store, logs, nil)
	out, err := p.Process(ctx, Upload{Filename: "cnh_joao.png", Data: []byte("png-bytes")})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if out.DocumentType != constants.CNH {
		t.Fatalf("type = %s", out.DocumentType)
	}
	if !out.UsedOCR || !out.Result.Success || len(out.Checks) != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Original == nil || out.Preview != nil {
		t.Fatalf("original = %v preview = %v", out.Original, out.Preview)
	}
	if !strings.HasPrefix(out.Original.Key, storage.FolderDocuments+"/") {
		t.Fatalf("key = %s", out.Original.Key)
	}

	row, err := logs.Get(ctx, out.LogID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.Status != constants.LogStatusSuccess || row.ModelName != "fake-model" || row.TotalTokens != 580 {
		t.Fatalf("row = %+v", row)
	}
	if !strings.Contains(row.ExtractedText, "JOAO DA SILVA") || !row.UsedOCR {
		t.Fatalf("row text = %q used_ocr = %v", row.ExtractedText, row.UsedOCR)
	}
	if row.OriginalKey != out.Original.Key {
		t.Fatalf("original key = %q", row.OriginalKey)
	}
}

func TestProcessRejectsBadUploads(t *testing.T) {
	ctx := context.Background()
	logs := openLogs(t)
	fs := &fakeStructurer{content: `{}`}
	p := NewProcessor(Config{}, newAssembler(nil), newTestService(t, fs), nil, nil, logs, nil)

	uploads := []Upload{
		{Filename: "notes.txt", Data: []byte("hello")},
		{Filename: "empty.png"},
		{Filename: "tiny.pdf", Data: []byte("%PDF-1.4")},
	}
	for _, up := range uploads {
		out, err := p.Process(ctx, up)
		if !errors.Is(err, common.ErrInvalidInput) {
			t.Fatalf("%s: err = %v, want ErrInvalidInput", up.Filename, err)
		}
		if out.Result.Success {
			t.Fatalf("%s: result should fail", up.Filename)
		}
	}
	if len(fs.prompts) != 0 {
		t.Fatal("structurer called for rejected uploads")
	}

	errs, err := logs.Count(ctx, repository.LogFilter{Status: constants.LogStatusError})
	if err != nil {
		t.Fatal(err)
	}
	if errs != len(uploads) {
		t.Fatalf("error rows = %d, want %d", errs, len(uploads))
	}
}
