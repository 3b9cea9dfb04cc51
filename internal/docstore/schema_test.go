package docstore

import (
	"encoding/json"
	"testing"
)

func TestSchema(t *testing.T) {
	s := Schema[detail]()
	for _, name := range []string{"version", "name", "items"} {
		if _, ok := s.Properties.Get(name); !ok {
			t.Errorf("schema missing property %q", name)
		}
	}
	data, err := SchemaJSON[detail]()
	if err != nil {
		t.Fatalf("SchemaJSON() error = %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("SchemaJSON() produced invalid JSON: %v", err)
	}
	if m["type"] != "object" {
		t.Errorf("type = %v, want object", m["type"])
	}
}
