package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/KeyCoreSH/extractBrowser-EC2/constants"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/common"
	"github.com/KeyCoreSH/extractBrowser-EC2/internal/scoring"
)

// TextPlaceholder marks where the document text goes in a template.
const TextPlaceholder = "{{TEXTO_DOCUMENTO}}"

// Schema is the immutable routing entry for one document type.
type Schema struct {
	DocumentType   constants.DocumentType
	Kind           Kind
	Title          string
	RequiredFields []string
	Skeleton       string // null-placeholder JSON shown to the model
	Template       string // prompt body with TextPlaceholder
	JSONSchema     map[string]any

	compiled *jsonschema.Schema
}

// Validate checks data against the schema's JSON Schema.
func (s *Schema) Validate(data map[string]any) error {
	if err := s.compiled.Validate(toJSONValue(data)); err != nil {
		return fmt.Errorf("%w: json does not match schema: %v", common.ErrValidation, err)
	}
	return nil
}

// Registry maps document types to schemas. It is built once and never
// mutated.
type Registry struct {
	schemas map[constants.DocumentType]*Schema
	logger  *slog.Logger
}

// NewRegistry builds and checks the registry from the static template table.
func NewRegistry(logger *slog.Logger) (*Registry, error) {
	return newRegistry(templates, logger)
}

func newRegistry(tpls map[constants.DocumentType]template, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, ok := tpls[constants.Generico]; !ok {
		return nil, common.NewAppError(common.CodeUnsupported, "registry has no generic template", common.ErrUnsupportedDocumentType)
	}

	r := &Registry{schemas: make(map[constants.DocumentType]*Schema, len(tpls)), logger: logger}
	for _, dt := range constants.AllDocumentTypes() {
		tpl, ok := tpls[dt]
		if !ok {
			return nil, common.NewAppError(common.CodeUnsupported, "no template for "+string(dt), common.ErrUnsupportedDocumentType)
		}
		s, err := buildSchema(dt, tpl)
		if err != nil {
			return nil, fmt.Errorf("registry %s: %w", dt, err)
		}
		r.schemas[dt] = s
	}
	logger.Debug("llm.registry.ready", "types", len(r.schemas))
	return r, nil
}

func buildSchema(dt constants.DocumentType, tpl template) (*Schema, error) {
	var skeleton map[string]any
	if err := json.Unmarshal([]byte(tpl.skeleton), &skeleton); err != nil {
		return nil, fmt.Errorf("parse skeleton: %w", err)
	}
	if skeleton == nil {
		return nil, fmt.Errorf("skeleton must be a JSON object")
	}

	required := scoring.RequiredFields(dt)
	for _, path := range required {
		if _, ok := scoring.Lookup(skeleton, path); !ok {
			return nil, fmt.Errorf("required field %q missing from skeleton", path)
		}
	}
	for path := range tpl.enums {
		if _, ok := scoring.Lookup(skeleton, path); !ok {
			return nil, fmt.Errorf("enum field %q missing from skeleton", path)
		}
	}

	body := renderTemplate(tpl)
	if n := strings.Count(body, TextPlaceholder); n != 1 {
		return nil, fmt.Errorf("template must contain the text placeholder once, found %d", n)
	}

	js := objectSchema(skeleton, "", tpl.enums)
	js["type"] = "object"
	compiled, err := compileSchema("schema-"+strings.ToLower(string(dt))+".json", js)
	if err != nil {
		return nil, err
	}

	return &Schema{
		DocumentType:   dt,
		Kind:           tpl.kind,
		Title:          tpl.title,
		RequiredFields: required,
		Skeleton:       tpl.skeleton,
		Template:       body,
		JSONSchema:     js,
		compiled:       compiled,
	}, nil
}

// Lookup canonicalizes docType and returns its schema. Unknown tags resolve
// to the generic schema.
func (r *Registry) Lookup(docType string) (*Schema, error) {
	dt, known := constants.Canonicalize(docType)
	if !known && strings.TrimSpace(docType) != "" {
		r.logger.Warn("llm.registry.unknown_type", "document_type", docType, "fallback", dt)
	}
	s, ok := r.schemas[dt]
	if !ok {
		return nil, common.NewAppError(common.CodeUnsupported, "no schema for "+string(dt), common.ErrUnsupportedDocumentType)
	}
	return s, nil
}

// Types lists the registered document types in declaration order.
func (r *Registry) Types() []constants.DocumentType {
	out := make([]constants.DocumentType, 0, len(r.schemas))
	for _, dt := range constants.AllDocumentTypes() {
		if _, ok := r.schemas[dt]; ok {
			out = append(out, dt)
		}
	}
	return out
}

// objectSchema derives a permissive shape contract from a skeleton: every key
// must appear, leaves are scalars or null, nested objects and lists may be null.
func objectSchema(m map[string]any, prefix string, enums map[string][]string) map[string]any {
	props := make(map[string]any, len(m))
	required := make([]string, 0, len(m))
	for k, v := range m {
		props[k] = valueSchema(v, join(prefix, k), enums)
		required = append(required, k)
	}
	slices.Sort(required)
	out := map[string]any{
		"type":                 []any{"object", "null"},
		"additionalProperties": true,
	}
	if len(props) > 0 {
		out["properties"] = props
		out["required"] = required
	}
	return out
}

func valueSchema(v any, path string, enums map[string][]string) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return objectSchema(t, path, enums)
	case []any:
		s := map[string]any{"type": []any{"array", "null"}}
		if len(t) > 0 {
			if item, ok := t[0].(map[string]any); ok {
				items := objectSchema(item, path, enums)
				delete(items, "required")
				s["items"] = items
			}
		}
		return s
	default:
		if allowed, ok := enums[path]; ok {
			vals := make([]any, 0, len(allowed)+1)
			for _, a := range allowed {
				vals = append(vals, a)
			}
			return map[string]any{"enum": append(vals, nil)}
		}
		return map[string]any{"type": []any{"string", "number", "boolean", "null"}}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func compileSchema(url string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// toJSONValue round-trips v through encoding/json so the validator only sees
// JSON-native types.
func toJSONValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
