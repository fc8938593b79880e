package generator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidDraft is returned when generated content is not a {subject, content} object.
var ErrInvalidDraft = errors.New("generator: invalid draft")

const draftSchemaURL = "collectflow://schemas/draft.json"

const draftSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["subject", "content"],
  "properties": {
    "subject": {"type": "string", "minLength": 1},
    "content": {"type": "string", "minLength": 1}
  }
}`

var draftSchema = mustCompileDraftSchema()

// Draft is the parsed subject/body pair.
type Draft struct {
	Subject string
	Content string
}

// ParseDraft decodes generated content into a Draft. A surrounding markdown
// code fence is tolerated; anything else that is not a JSON object with
// non-empty subject and content is ErrInvalidDraft.
func ParseDraft(raw string) (Draft, error) {
	body := stripFence(raw)

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(body))
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	if err := draftSchema.Validate(doc); err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}

	obj := doc.(map[string]any)
	return Draft{
		Subject: obj["subject"].(string),
		Content: obj["content"].(string),
	}, nil
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func mustCompileDraftSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(draftSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("generator: draft schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(draftSchemaURL, doc); err != nil {
		panic(fmt.Sprintf("generator: draft schema: %v", err))
	}
	schema, err := c.Compile(draftSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("generator: draft schema: %v", err))
	}
	return schema
}
