package llm

import (
	"errors"
	"strings"
	"testing"

	"github.com/pkoukk/tiktoken-go"

	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

func mustRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestRegistryCoversEveryType(t *testing.T) {
	r := mustRegistry(t)
	if got, want := len(r.Types()), len(constants.AllDocumentTypes()); got != want {
		t.Fatalf("types = %d, want %d", got, want)
	}
	for _, dt := range constants.AllDocumentTypes() {
		s, err := r.Lookup(string(dt))
		if err != nil {
			t.Fatalf("Lookup(%s): %v", dt, err)
		}
		if s.DocumentType != dt {
			t.Fatalf("Lookup(%s) routed to %s", dt, s.DocumentType)
		}
		if strings.Count(s.Template, TextPlaceholder) != 1 {
			t.Fatalf("%s template placeholder count", dt)
		}
	}
}

func TestRegistryRouting(t *testing.T) {
	r := mustRegistry(t)
	veiculo, _ := r.Lookup("VEICULO")
	for _, tag := range []string{"CRLV", "crv", "CRLV-e", " veiculo "} {
		s, err := r.Lookup(tag)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", tag, err)
		}
		if s != veiculo {
			t.Fatalf("Lookup(%q) = %s, want the VEICULO schema", tag, s.DocumentType)
		}
	}

	for _, tag := range []string{"", "PASSAPORTE"} {
		s, err := r.Lookup(tag)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", tag, err)
		}
		if s.Kind != KindGenericFallback {
			t.Fatalf("Lookup(%q) kind = %s", tag, s.Kind)
		}
	}

	cnh, _ := r.Lookup("cnh")
	cpf, _ := r.Lookup("CPF")
	if cnh == cpf || cnh.Kind != KindPersonIdentity || cpf.Kind != KindPersonIdentity {
		t.Fatalf("CNH and CPF should be distinct person-identity schemas")
	}
}

func TestRegistryRejectsIncompleteTable(t *testing.T) {
	missing := map[constants.DocumentType]template{}
	for k, v := range templates {
		if k != constants.CNH {
			missing[k] = v
		}
	}
	if _, err := newRegistry(missing, nil); !errors.Is(err, common.ErrUnsupportedDocumentType) {
		t.Fatalf("missing CNH: err = %v", err)
	}

	noGeneric := map[constants.DocumentType]template{constants.CNH: templates[constants.CNH]}
	if _, err := newRegistry(noGeneric, nil); !errors.Is(err, common.ErrUnsupportedDocumentType) {
		t.Fatalf("missing generic: err = %v", err)
	}

	broken := map[constants.DocumentType]template{}
	for k, v := range templates {
		broken[k] = v
	}
	bad := broken[constants.CPF]
	bad.skeleton = `{"cpf": null,}`
	broken[constants.CPF] = bad
	if _, err := newRegistry(broken, nil); err == nil {
		t.Fatalf("unparseable skeleton accepted")
	}
}

func TestSchemaPrompt(t *testing.T) {
	r := mustRegistry(t)
	text := "=== PAGE 1 ===\nRNTRC: 12345\nRAZÃO SOCIAL: TRANSPORTES XYZ LTDA"
	s, err := r.Lookup("ANTT")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	p := s.Prompt(text)
	for _, want := range []string{
		text,
		`"rntrc": null`,
		TagCertificadoANTT,
		"SCHEMA DO JSON DE RESPOSTA:",
		"Se uma informação não for encontrada, use null.",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(p, TextPlaceholder) {
		t.Errorf("placeholder left in prompt")
	}
	if !strings.HasSuffix(p, "Retorne apenas o JSON estruturado:") {
		t.Errorf("prompt should end with the closing instruction")
	}
}

func TestSchemaValidate(t *testing.T) {
	r := mustRegistry(t)
	s, _ := r.Lookup("ANTT")

	ok := map[string]any{
		"tipo_documento":      TagExtratoANTT,
		"transportador":       map[string]any{"rntrc": "1", "razao_social_nome": nil, "cpf_cnpj": nil, "situacao_rntrc": nil, "categoria": nil, "data_cadastro": nil, "data_validade": nil, "data_emissao": nil},
		"endereco":            nil,
		"resumo_frota":        nil,
		"responsavel_tecnico": nil,
		"veiculos":            []any{map[string]any{"placa": "ABC1D23"}},
	}
	if err := s.Validate(ok); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	bad := map[string]any{"tipo_documento": "OUTRO"}
	if err := s.Validate(bad); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("Validate = %v, want enum and required violations", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"clean", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced bare", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Aqui está:\n{\"a\":{\"b\":2}}\nObrigado.", `{"a":{"b":2}}`},
		{"whitespace", "  \n{\"a\":1}\n ", `{"a":1}`},
		{"no object", "sem json", "sem json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.in)
			if got != tt.want {
				t.Fatalf("ExtractJSON = %q, want %q", got, tt.want)
			}
			if again := ExtractJSON(got); again != got {
				t.Fatalf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestParseJSON(t *testing.T) {
	m, err := ParseJSON("```json\n{\"nome\": \"ANA\", \"cpf\": null}\n```")
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if m["nome"] != "ANA" {
		t.Fatalf("m = %v", m)
	}

	for _, in := range []string{"```json\n{\"a\":1,}\n```", "", "null", "[1,2]", "{'a': 1}"} {
		if _, err := ParseJSON(in); !errors.Is(err, common.ErrMalformedJSON) {
			t.Errorf("ParseJSON(%q) err = %v, want ErrMalformedJSON", in, err)
		}
	}
}

func TestCleanNulls(t *testing.T) {
	data := map[string]any{
		"nome": "  ANA  ",
		"cpf":  "null",
		"rg":   "",
		"endereco": map[string]any{
			"cidade": "NULL",
			"uf":     "PR",
		},
		"socios": []any{map[string]any{"nome": " "}},
	}
	changed := CleanNulls(data, nil)
	if data["nome"] != "ANA" || data["cpf"] != nil || data["rg"] != nil {
		t.Fatalf("data = %v", data)
	}
	if data["endereco"].(map[string]any)["cidade"] != nil {
		t.Fatalf("nested null not cleaned")
	}
	if data["socios"].([]any)[0].(map[string]any)["nome"] != nil {
		t.Fatalf("list item not cleaned")
	}
	if len(changed) != 4 {
		t.Fatalf("changed = %v", changed)
	}
}

func TestTokenCounterFallback(t *testing.T) {
	tc := NewTokenCounter(nil)
	tc.load = func() (*tiktoken.Tiktoken, error) { return nil, errors.New("offline") }

	if got := tc.Count(""); got != 0 {
		t.Fatalf("Count(\"\") = %d", got)
	}
	if got := tc.Count("abcdefgh"); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}
	u := tc.Estimate("abcd", "abcdefgh")
	if u.InputTokens != 1 || u.OutputTokens != 2 || u.TotalTokens != 3 {
		t.Fatalf("usage = %+v", u)
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("ação", 10); got != "ação" {
		t.Fatalf("Snippet = %q", got)
	}
	if got := Snippet("abcdef", 3); got != "abc…" {
		t.Fatalf("Snippet = %q", got)
	}
}
