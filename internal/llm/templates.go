package llm

import "github.com/KeyCoreSH/extractBrowser-EC2/constants"

// Kind groups document types that share a schema family.
type Kind string

const (
	KindPersonIdentity     Kind = "person-identity"
	KindCorporateRegistry  Kind = "corporate-registry"
	KindVehicleRegistry    Kind = "vehicle-registry"
	KindCarrierCertificate Kind = "carrier-certificate"
	KindUtilityBill        Kind = "utility-bill"
	KindGenericFallback    Kind = "generic-fallback"
)

// ANTT document tags accepted in tipo_documento.
const (
	TagCertificadoANTT = constants.TagCertificadoANTT
	TagExtratoANTT     = constants.TagExtratoANTT
)

type template struct {
	kind         Kind
	title        string
	skeleton     string
	instructions []string
	enums        map[string][]string // dotted path -> allowed values (null always allowed)
}

var templates = map[constants.DocumentType]template{
	constants.CNH: {
		kind:  KindPersonIdentity,
		title: "CNH (Carteira Nacional de Habilitação)",
		skeleton: `{
  "nome": null,
  "cpf": null,
  "rg": null,
  "data_nascimento": null,
  "data_emissao": null,
  "data_vencimento": null,
  "categoria": null,
  "numero_registro": null,
  "local_emissao": null,
  "endereco": {
    "logradouro": null,
    "bairro": null,
    "cidade": null,
    "estado": null,
    "cep": null
  },
  "filiacao": {
    "pai": null,
    "mae": null
  },
  "orgao_emissor": null,
  "observacoes": null,
  "nacionalidade": null,
  "primeira_habilitacao": null
}`,
		instructions: []string{
			"Datas no formato DD/MM/AAAA.",
			"CPF no formato 000.000.000-00.",
			"categoria é a categoria de habilitação (A, B, AB, C, D, E, ACC).",
			"numero_registro é o número de registro da CNH (11 dígitos).",
		},
	},
	constants.CPF: {
		kind:  KindPersonIdentity,
		title: "Comprovante de Inscrição no CPF",
		skeleton: `{
  "cpf": null,
  "nome": null,
  "data_nascimento": null,
  "situacao_cadastral": null,
  "data_inscricao": null,
  "endereco": {
    "logradouro": null,
    "numero": null,
    "complemento": null,
    "bairro": null,
    "cidade": null,
    "estado": null,
    "cep": null
  },
  "documento_origem": null
}`,
		instructions: []string{
			"CPF no formato 000.000.000-00.",
			"situacao_cadastral como aparece no documento (REGULAR, SUSPENSA, CANCELADA...).",
			"documento_origem indica de onde o CPF foi lido (cartão, comprovante, outro documento).",
		},
	},
	constants.CNPJ: {
		kind:  KindCorporateRegistry,
		title: "Comprovante de Inscrição e Situação Cadastral (CNPJ)",
		skeleton: `{
  "cnpj": null,
  "razao_social": null,
  "nome_fantasia": null,
  "natureza_juridica": null,
  "atividade_principal": null,
  "data_abertura": null,
  "situacao_cadastral": null,
  "data_situacao": null,
  "endereco": {
    "logradouro": null,
    "complemento": null,
    "bairro": null,
    "cidade": null,
    "estado": null,
    "cep": null
  },
  "capital_social": null,
  "porte": null,
  "responsavel_federativo": null,
  "socios": [
    {
      "nome": null,
      "cpf_cnpj": null,
      "qualificacao": null
    }
  ],
  "telefone": null,
  "email": null,
  "site": null
}`,
		instructions: []string{
			"CNPJ no formato 00.000.000/0000-00.",
			"atividade_principal inclui o código CNAE e a descrição.",
			"Liste todos os sócios encontrados; use [] se não houver quadro societário.",
		},
	},
	constants.ANTT: {
		kind:  KindCarrierCertificate,
		title: "Certificado ou Extrato ANTT (RNTRC)",
		skeleton: `{
  "tipo_documento": null,
  "transportador": {
    "rntrc": null,
    "razao_social_nome": null,
    "cpf_cnpj": null,
    "situacao_rntrc": null,
    "categoria": null,
    "data_cadastro": null,
    "data_validade": null,
    "data_emissao": null
  },
  "endereco": {
    "logradouro": null,
    "numero": null,
    "complemento": null,
    "bairro": null,
    "cidade": null,
    "uf": null,
    "cep": null
  },
  "resumo_frota": {
    "total_veiculos": null,
    "veiculos_ativos": null,
    "veiculos_automotores": null,
    "veiculos_implementos": null
  },
  "responsavel_tecnico": {
    "nome": null,
    "cpf": null
  },
  "veiculos": [
    {
      "placa": null,
      "renavam": null,
      "tipo": null,
      "tipo_carroceria": null,
      "situacao": null,
      "propriedade": null
    }
  ]
}`,
		instructions: []string{
			`tipo_documento deve ser "` + TagCertificadoANTT + `" ou "` + TagExtratoANTT + `".`,
			`Cabeçalho: procure pares chave/valor como "RNTRC:", "RAZÃO SOCIAL:", "CNPJ:".`,
			"cpf_cnpj apenas com números. categoria é ETC, TAC ou CTC.",
			"Veículos: procure placas no padrão AAA-0000 ou AAA0A00 e RENAVAM com 9 a 11 dígitos; liste TODOS os veículos.",
			"Cada veículo costuma trazer placa, renavam, tipo (Automotor/Implemento), carroceria e situação.",
			"Endereço: logradouro, bairro, CEP (00000-000) e cidade/UF.",
			"Campos de resumo_frota são números inteiros.",
		},
		enums: map[string][]string{
			"tipo_documento": {TagCertificadoANTT, TagExtratoANTT},
		},
	},
	constants.Veiculo: {
		kind:  KindVehicleRegistry,
		title: "Documento de Veículo (CRV/CRLV)",
		skeleton: `{
  "dados_veiculo": {
    "placa": null,
    "placa_anterior": null,
    "chassi": null,
    "renavam": null,
    "marca_modelo": null,
    "ano_fabricacao": null,
    "ano_modelo": null,
    "cor": null,
    "combustivel": null,
    "categoria": null,
    "especie": null,
    "tipo": null,
    "potencia": null,
    "cilindrada": null,
    "motor": null,
    "lotacao": null,
    "peso_bruto_total": null
  },
  "situacao": {
    "exercicio": null,
    "restricoes": [],
    "observacoes": null
  },
  "proprietario": {
    "nome": null,
    "cpf_cnpj": null,
    "endereco": null,
    "cidade": null,
    "uf": null
  }
}`,
		instructions: []string{
			"Placa no padrão AAA-0000 ou Mercosul AAA0A00.",
			"RENAVAM com 9 a 11 dígitos; chassi com 17 caracteres.",
			"restricoes é a lista de restrições (alienação fiduciária, judicial...); use [] se não houver.",
		},
	},
	constants.Residencia: {
		kind:  KindUtilityBill,
		title: "Comprovante de Residência (conta de consumo)",
		skeleton: `{
  "tipo_conta": null,
  "emissor": {
    "nome_empresa": null,
    "cnpj": null
  },
  "fatura": {
    "mes_referencia": null,
    "vencimento": null,
    "valor_total": null,
    "numero_instalacao": null,
    "codigo_cliente": null,
    "codigo_barras": null
  },
  "titular": {
    "nome": null,
    "cpf_cnpj": null
  },
  "endereco_instalacao": {
    "logradouro": null,
    "numero": null,
    "complemento": null,
    "bairro": null,
    "cidade": null,
    "uf": null,
    "cep": null
  },
  "leituras": {
    "leitura_atual": null,
    "leitura_anterior": null,
    "consumo": null
  }
}`,
		instructions: []string{
			"tipo_conta é ENERGIA, AGUA, TELECOM, GAS ou OUTROS.",
			"valor_total como aparece na fatura (ex: 123,45).",
			"mes_referencia no formato MM/AAAA; vencimento no formato DD/MM/AAAA.",
		},
		enums: map[string][]string{
			"tipo_conta": {"ENERGIA", "AGUA", "TELECOM", "GAS", "OUTROS"},
		},
	},
	constants.Generico: {
		kind:  KindGenericFallback,
		title: "Documento (tipo não identificado)",
		skeleton: `{
  "tipo_documento": null,
  "nome": null,
  "cpf_cnpj": null,
  "documento_numero": null,
  "data_emissao": null,
  "endereco": null,
  "dados_principais": {},
  "informacoes_adicionais": null
}`,
		instructions: []string{
			"tipo_documento descreve o documento com suas palavras.",
			"dados_principais reúne outros pares chave/valor relevantes encontrados.",
		},
	},
}
