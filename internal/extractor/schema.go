package extractor

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// menuSchemaJSON constrains what the model may return. The same schema is
// shown to the model inside the system prompt and then enforced locally, so a
// provider that ignores the instructions still cannot push malformed data
// into the cache.
const menuSchemaJSON = `{
  "type": "object",
  "properties": {
    "restaurant_name": { "type": "string", "maxLength": 100 },
    "date": { "type": "string", "maxLength": 50 },
    "reason": { "type": ["string", "null"], "maxLength": 200 },
    "menu_items": {
      "type": "array",
      "minItems": 0,
      "maxItems": 200,
      "items": {
        "type": "object",
        "properties": {
          "category": { "type": "string", "maxLength": 100 },
          "name": { "type": "string", "maxLength": 200 },
          "price": { "type": ["number", "null"] },
          "allergens": {
            "type": "array",
            "maxItems": 20,
            "items": { "type": "string", "maxLength": 50 }
          },
          "weight": { "type": ["string", "null"], "maxLength": 50 }
        },
        "required": ["category", "name", "price", "allergens", "weight"],
        "additionalProperties": false
      }
    },
    "rationale": {
      "type": "array",
      "description": "A short, ordered list of reasoning steps used to extract the menu",
      "items": { "type": "string", "maxLength": 200 },
      "maxItems": 50
    },
    "menu_type": {
      "type": "string",
      "enum": ["daily", "launch", "breakfast", "weekly", "weekend", "regular", "special"]
    }
  },
  "required": ["restaurant_name", "date", "menu_items", "reason", "menu_type", "rationale"],
  "additionalProperties": false
}`

var menuSchema = jsonschema.MustCompileString("menu.schema.json", menuSchemaJSON)

// flattenValidationError walks the cause tree and returns one line per leaf
// failure, keyed by instance location.
func flattenValidationError(err *jsonschema.ValidationError) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, loc+": "+e.Message)
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(err)
	return out
}

// compactSchema is the schema text embedded in the system prompt.
func compactSchema() string {
	return strings.TrimSpace(menuSchemaJSON)
}
