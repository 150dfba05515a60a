package feature

import (
	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// JSONSchemaValidator validates properties against a compiled draft-04
// JSON-Schema document, per spec.md §4.B.
type JSONSchemaValidator struct {
	schema *jsonschema.Schema
}

// LoadSchema compiles the draft-04 JSON-Schema document at path.
func LoadSchema(path string) (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft4)

	sch, err := c.Compile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to compile properties schema", err)
	}
	return &JSONSchemaValidator{schema: sch}, nil
}

// Validate reports a schema-violation-shaped error when properties does not
// satisfy the compiled schema. The outer Validate wraps this error with the
// schema-violation kind; this method just carries the underlying cause.
func (v *JSONSchemaValidator) Validate(properties map[string]interface{}) error {
	instance := make(map[string]interface{}, len(properties))
	for k, val := range properties {
		instance[k] = val
	}
	return v.schema.Validate(instance)
}
