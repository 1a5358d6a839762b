package yaml

import (
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/parser"
)

// ErrNilValue is returned by [MergeRootFromValue] for a nil value.
var ErrNilValue = errors.New("nil value")

// MergeRootFromValue merges v into the root mapping of the YAML document in
// data. Keys in v replace existing keys; comments and the order of untouched
// keys are preserved.
func MergeRootFromValue(data []byte, v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("merge yaml: %w", ErrNilValue)
	}

	file, err := parser.ParseBytes(data, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	node, err := yaml.ValueToNode(v, DefaultEncoderOptions...)
	if err != nil {
		return nil, fmt.Errorf("convert value to node: %w", err)
	}

	err = NewPathBuilder().Root().Build().MergeFromNode(file, node)
	if err != nil {
		return nil, fmt.Errorf("merge yaml: %w", err)
	}

	return []byte(file.String()), nil
}
