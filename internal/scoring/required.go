package scoring

import (
	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
)

// requiredFields is the canonical required set per type, as dotted paths into
// the structured data. GENERICO deliberately has none.
var requiredFields = map[constants.DocumentType][]string{
	constants.CNH:        {"nome", "cpf", "categoria"},
	constants.CPF:        {"nome", "cpf"},
	constants.CNPJ:       {"razao_social", "cnpj"},
	constants.ANTT:       {"transportador.rntrc", "transportador.razao_social_nome", "transportador.cpf_cnpj"},
	constants.Veiculo:    {"dados_veiculo.placa", "dados_veiculo.renavam", "proprietario.nome"},
	constants.Residencia: {"titular.nome", "endereco_instalacao.logradouro", "emissor.nome_empresa"},
	constants.Generico:   {},
}

// digitRules lists shape checks: path -> accepted digit counts.
var digitRules = map[constants.DocumentType]map[string][]int{
	constants.CNH:        {"cpf": {11}},
	constants.CPF:        {"cpf": {11}},
	constants.CNPJ:       {"cnpj": {14}},
	constants.ANTT:       {"transportador.cpf_cnpj": {11, 14}, "responsavel_tecnico.cpf": {11}},
	constants.Veiculo:    {"dados_veiculo.renavam": {9, 10, 11}, "proprietario.cpf_cnpj": {11, 14}},
	constants.Residencia: {"emissor.cnpj": {14}, "titular.cpf_cnpj": {11, 14}},
}

// valueRules constrain the content of a field once present.
var valueRules = map[constants.DocumentType]map[string][]common.ValidationRule{
	constants.CNH: {
		"categoria": {common.OneOf("A", "B", "C", "D", "E", "AB", "AC", "AD", "AE", "ACC")},
	},
	constants.ANTT: {
		"tipo_documento":          {common.OneOf(constants.TagCertificadoANTT, constants.TagExtratoANTT)},
		"transportador.categoria": {common.OneOf("ETC", "TAC", "CTC")},
	},
	constants.Veiculo: {
		"dados_veiculo.placa": {common.MaxLength(8)},
	},
}

// RequiredFields returns a copy of the required paths for t. Unknown types
// have no required fields.
func RequiredFields(t constants.DocumentType) []string {
	src := requiredFields[t]
	out := make([]string, len(src))
	copy(out, src)
	return out
}
