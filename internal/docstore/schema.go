package docstore

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON Schema describing how T is stored on disk.
//
// The root type is expanded in place; nested named types, including
// recursive ones, are emitted under $defs.
func Schema[T any]() *jsonschema.Schema {
	r := jsonschema.Reflector{
		Anonymous:      true,
		ExpandedStruct: true,
	}
	return r.Reflect(new(T))
}

// SchemaJSON returns Schema[T] rendered as indented JSON.
func SchemaJSON[T any]() ([]byte, error) {
	return json.MarshalIndent(Schema[T](), "", "  ")
}
