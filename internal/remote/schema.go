package remote

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// listSchemaJSON describes the parts of a list response the client relies
// on. Unknown fields are allowed; servers add fields between releases.
const listSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["total", "messages_count", "start", "messages"],
  "properties": {
    "total":           {"type": "integer", "minimum": 0},
    "unread":          {"type": "integer", "minimum": 0},
    "count":           {"type": "integer", "minimum": 0},
    "messages_count":  {"type": "integer", "minimum": 0},
    "messages_unread": {"type": "integer", "minimum": 0},
    "start":           {"type": "integer", "minimum": 0},
    "tags":            {"type": ["array", "null"], "items": {"type": "string"}},
    "messages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["ID"],
        "properties": {
          "ID":   {"type": "string", "minLength": 1},
          "Read": {"type": "boolean"},
          "Tags": {"type": ["array", "null"], "items": {"type": "string"}}
        }
      }
    }
  }
}`

var listSchema = mustCompileSchema("list.json", listSchemaJSON)

func mustCompileSchema(name, doc string) *jsonschema.Schema {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		panic(fmt.Sprintf("parse %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, parsed); err != nil {
		panic(fmt.Sprintf("add %s: %v", name, err))
	}
	sch, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile %s: %v", name, err))
	}
	return sch
}

// validateList checks payload against the list response schema.
func validateList(payload []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("malformed list response: %w", err)
	}
	if err := listSchema.Validate(inst); err != nil {
		return fmt.Errorf("list response does not match schema: %w", err)
	}
	return nil
}
