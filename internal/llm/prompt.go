package llm

import (
	"fmt"
	"strings"
)

// SystemPrompt is the role framing sent as the system message.
const SystemPrompt = "Você é um especialista em extração de dados de documentos brasileiros. " +
	"Analise o texto fornecido e extraia as informações solicitadas em formato JSON válido."

// baseRules apply to every document type, in this order.
var baseRules = []string{
	"Retorne APENAS o JSON, sem nenhum texto antes ou depois.",
	"NÃO use blocos de código markdown (```json ou ```).",
	"O JSON deve ser válido: sem vírgulas finais e com todas as chaves e strings entre aspas duplas.",
	"Escape corretamente aspas e quebras de linha dentro dos valores.",
	"Se uma informação não for encontrada, use null.",
	"Mantenha EXATAMENTE a estrutura do schema: todos os campos devem aparecer, mesmo que null.",
}

func renderTemplate(tpl template) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extraia os dados do documento a seguir: %s.\n\n", tpl.title)

	b.WriteString("REGRAS OBRIGATÓRIAS:\n")
	for i, r := range baseRules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}

	b.WriteString("\nSCHEMA DO JSON DE RESPOSTA:\n")
	b.WriteString(tpl.skeleton)
	b.WriteString("\n")

	if len(tpl.instructions) > 0 {
		b.WriteString("\nINSTRUÇÕES ESPECÍFICAS:\n")
		for _, in := range tpl.instructions {
			b.WriteString("- ")
			b.WriteString(in)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nTEXTO DO DOCUMENTO:\n")
	b.WriteString(TextPlaceholder)
	b.WriteString("\n\nRetorne apenas o JSON estruturado:")
	return b.String()
}

// Prompt fills the template with text.
func (s *Schema) Prompt(text string) string {
	return strings.Replace(s.Template, TextPlaceholder, text, 1)
}
