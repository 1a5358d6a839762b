package yaml

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

// DurationPattern matches strings accepted by [time.ParseDuration].
const DurationPattern = `^-?([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var durationType = reflect.TypeFor[time.Duration]()

// SchemaGenerator reflects a JSON schema from a Go value.
// Uses [github.com/invopop/jsonschema].
type SchemaGenerator struct {
	reflector *jsonschema.Reflector
	v         any
}

// NewSchemaGenerator creates a new [SchemaGenerator] for v. Durations are
// described as strings, the way they are written in YAML.
func NewSchemaGenerator(v any) *SchemaGenerator {
	return &SchemaGenerator{
		v: v,
		reflector: &jsonschema.Reflector{
			ExpandedStruct:             true,
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: true,
			Mapper: func(t reflect.Type) *jsonschema.Schema {
				if t == durationType {
					return &jsonschema.Schema{
						Type:    "string",
						Pattern: DurationPattern,
					}
				}

				return nil
			},
		},
	}
}

// Schema returns the reflected schema.
func (g *SchemaGenerator) Schema() *jsonschema.Schema {
	return g.reflector.Reflect(g.v)
}

// Generate returns the reflected schema as indented JSON.
func (g *SchemaGenerator) Generate() ([]byte, error) {
	b, err := json.MarshalIndent(g.Schema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	return b, nil
}
