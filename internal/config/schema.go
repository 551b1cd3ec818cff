package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON Schema describing config.yaml, for editor integration.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
	}
	s := r.Reflect(&Config{})
	s.Title = "idpforge configuration"
	s.Description = "Schema for ~/.idpforge/config.yaml."
	s.Required = nil
	return json.MarshalIndent(s, "", "  ")
}
