package llm

import (
	"embed"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema is a compiled JSON schema for one structured output type.
type Schema struct {
	Name     string
	document []byte
	compiled *gojsonschema.Schema
}

// Built-in schemas.
var (
	EntitySchema         = mustSchema("entity")
	KnowledgeSchema      = mustSchema("knowledge")
	RecommendationSchema = mustSchema("recommendation")
)

func mustSchema(name string) *Schema {
	s, err := loadSchema(name)
	if err != nil {
		panic(err)
	}
	return s
}

func loadSchema(name string) (*Schema, error) {
	doc, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, eris.Wrapf(err, "llm: read schema %s", name)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, eris.Wrapf(err, "llm: compile schema %s", name)
	}
	return &Schema{Name: name, document: doc, compiled: compiled}, nil
}

// Document returns the raw schema JSON.
func (s *Schema) Document() []byte {
	return s.document
}

// Validate checks data against the schema and lists every violation.
func (s *Schema) Validate(data []byte) error {
	result, err := s.compiled.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return eris.Wrapf(err, "llm: validate %s", s.Name)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return eris.Errorf("llm: %s output failed validation: %s", s.Name, strings.Join(errs, "; "))
	}
	return nil
}

// Decode cleans a model reply, validates it against s and unmarshals it
// into out.
func (s *Schema) Decode(reply string, out any) error {
	cleaned := cleanJSON(reply)
	if cleaned == "" {
		return eris.Errorf("llm: empty %s reply", s.Name)
	}
	if err := s.Validate([]byte(cleaned)); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return eris.Wrapf(err, "llm: decode %s", s.Name)
	}
	return nil
}

// cleanJSON strips markdown code fences and any prose around the outermost
// JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
