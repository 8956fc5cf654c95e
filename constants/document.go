package constants

import (
	"path/filepath"
	"strings"
)

type DocumentType string

const (
	CNH        DocumentType = "CNH"
	CNPJ       DocumentType = "CNPJ"
	CPF        DocumentType = "CPF"
	ANTT       DocumentType = "ANTT"
	Veiculo    DocumentType = "VEICULO"
	Residencia DocumentType = "RESIDENCIA"
	Generico   DocumentType = "GENERICO"
)

// Tags the carrier-certificate schema accepts in tipo_documento.
const (
	TagCertificadoANTT = "CERTIFICADO_ANTT"
	TagExtratoANTT     = "EXTRATO_ANTT"
)

var allDocumentTypes = []DocumentType{
	CNH,
	CNPJ,
	CPF,
	ANTT,
	Veiculo,
	Residencia,
	Generico,
}

// synonyms maps lowercased tags to their canonical type.
var synonyms = map[string]DocumentType{
	"crv":                    Veiculo,
	"crlv":                   Veiculo,
	"crlv-e":                 Veiculo,
	"crlve":                  Veiculo,
	"veiculo":                Veiculo,
	"veículo":                Veiculo,
	"residencia":             Residencia,
	"residência":             Residencia,
	"comprovante":            Residencia,
	"comprovante_residencia": Residencia,
	"conta":                  Residencia,
	"fatura":                 Residencia,
	"energia":                Residencia,
	"agua":                   Residencia,
	"água":                   Residencia,
	"rntrc":                  ANTT,
	"certificado_antt":       ANTT,
	"extrato_antt":           ANTT,
	"cartao_cnpj":            CNPJ,
	"generic":                Generico,
}

// AllDocumentTypes returns the declared types in a stable order.
func AllDocumentTypes() []DocumentType {
	out := make([]DocumentType, len(allDocumentTypes))
	copy(out, allDocumentTypes)
	return out
}

func AsStringSlice() []string {
	result := make([]string, len(allDocumentTypes))
	for i, t := range allDocumentTypes {
		result[i] = string(t)
	}
	return result
}

// Canonicalize resolves a caller supplied tag. Unknown tags map to Generico
// with ok=false.
func Canonicalize(input string) (DocumentType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return Generico, false
	}

	if t, ok := synonyms[normalized]; ok {
		return t, true
	}

	for _, t := range allDocumentTypes {
		if normalized == strings.ToLower(string(t)) {
			return t, true
		}
	}

	return Generico, false
}

// filenameHints is checked in order; the first substring hit wins.
var filenameHints = []struct {
	needles []string
	t       DocumentType
}{
	{[]string{"antt", "rntrc"}, ANTT},
	{[]string{"cnh", "habilitacao"}, CNH},
	{[]string{"cnpj", "dados", "cadastrais"}, CNPJ},
	{[]string{"conta", "comprovante", "fatura", "residencia"}, Residencia},
	{[]string{"veiculo", "crv", "crlv"}, Veiculo},
	{[]string{"cpf"}, CPF},
}

// DetectFromFilename guesses the document type from an upload name. It is a
// caller side convenience; the extraction core never calls it.
func DetectFromFilename(name string) DocumentType {
	base := strings.ToLower(filepath.Base(name))
	for _, h := range filenameHints {
		for _, n := range h.needles {
			if strings.Contains(base, n) {
				return h.t
			}
		}
	}
	return Generico
}
