package yaml

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var msgPrinter = message.NewPrinter(language.English)

// Validator validates data against a JSON schema.
// Uses [github.com/santhosh-tekuri/jsonschema/v6].
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator creates a new [Validator] with the provided JSON schema data.
func NewValidator(url string, schemaData []byte) (*Validator, error) {
	var schema any

	err := json.Unmarshal(schemaData, &schema)
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	err = compiler.AddResource(url, schema)
	if err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	jss, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: jss}, nil
}

// NewValidatorFromGenerator creates a new [Validator] from the schema
// reflected by gen.
func NewValidatorFromGenerator(url string, gen *SchemaGenerator) (*Validator, error) {
	schemaData, err := gen.Generate()
	if err != nil {
		return nil, err
	}

	return NewValidator(url, schemaData)
}

// MustNewValidator is like [NewValidatorFromGenerator] but panics on error.
func MustNewValidator(url string, gen *SchemaGenerator) *Validator {
	v, err := NewValidatorFromGenerator(url, gen)
	if err != nil {
		panic(err)
	}

	return v
}

// Validate validates decoded YAML data against the schema. Violations are
// returned as an [*Error] whose path points at the most specific location.
func (s *Validator) Validate(data any) error {
	// Validate against schema.
	err := s.schema.Validate(data)
	if err == nil {
		return nil
	}

	// Convert validation error to our custom error type with path information.
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return fmt.Errorf("schema validation: %w", err)
	}

	cause := findMostSpecific(validationErr)

	return NewError(errors.New(causeMessage(cause)), WithPath(buildPathFromLocation(cause.InstanceLocation)))
}

// findMostSpecific returns the leaf cause with the longest InstanceLocation.
func findMostSpecific(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return err
	}

	var best *jsonschema.ValidationError

	for _, cause := range err.Causes {
		candidate := findMostSpecific(cause)
		if best == nil || len(candidate.InstanceLocation) > len(best.InstanceLocation) {
			best = candidate
		}
	}

	return best
}

func causeMessage(err *jsonschema.ValidationError) string {
	if err.ErrorKind == nil {
		return err.Error()
	}

	return err.ErrorKind.LocalizedString(msgPrinter)
}

// buildPathFromLocation converts an InstanceLocation slice to a [yaml.Path].
func buildPathFromLocation(location []string) *yaml.Path {
	if len(location) == 0 {
		return NewPathBuilder().Root().Build()
	}

	pb := NewPathBuilder()
	current := pb.Root()

	for _, part := range location {
		// Check if this part is a numeric index.
		var index uint

		_, err := fmt.Sscanf(part, "%d", &index)
		if err == nil {
			// This is an array index.
			current = current.Index(index)
		} else {
			// Regular property name.
			current = current.Child(part)
		}
	}

	return current.Build()
}
