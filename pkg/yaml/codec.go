// Package yaml wraps [github.com/goccy/go-yaml] with the encoder settings,
// schema validation, and error annotation used for configuration files.
package yaml

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
)

// DefaultEncoderOptions are used for all YAML output.
var DefaultEncoderOptions = []yaml.EncodeOption{
	yaml.Indent(2),
	yaml.IndentSequence(true),
	yaml.UseLiteralStyleIfMultiline(true),
}

// Decoder reads YAML documents. Decode errors carry the offending token.
type Decoder struct {
	d *yaml.Decoder
}

// NewDecoder creates a new [Decoder] reading from r.
func NewDecoder(r io.Reader, opts ...yaml.DecodeOption) *Decoder {
	return &Decoder{
		d: yaml.NewDecoder(r, opts...),
	}
}

// Decode reads the next document into v. Errors from the YAML library are
// returned as [*Error].
func (d *Decoder) Decode(v any) error {
	err := d.d.Decode(v)
	if err == nil {
		return nil
	}

	var yamlErr yaml.Error
	if errors.As(err, &yamlErr) {
		return NewError(errors.New(yamlErr.GetMessage()), WithToken(yamlErr.GetToken()))
	}

	//nolint:wrapcheck // Return the original error if it's not a [yaml.Error].
	return err
}

// Encoder writes YAML documents using [DefaultEncoderOptions].
type Encoder struct {
	e *yaml.Encoder
}

// NewEncoder creates a new [Encoder] writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		e: yaml.NewEncoder(w, DefaultEncoderOptions...),
	}
}

func (e *Encoder) Encode(v any) error {
	return e.e.Encode(v) //nolint:wrapcheck // Return the original error.
}

func (e *Encoder) Close() error {
	return e.e.Close() //nolint:wrapcheck // Return the original error.
}

// Marshal encodes v as a single YAML document.
func Marshal(v any) ([]byte, error) {
	b := &bytes.Buffer{}

	enc := NewEncoder(b)

	err := enc.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}

	err = enc.Close()
	if err != nil {
		return nil, fmt.Errorf("close yaml encoder: %w", err)
	}

	return b.Bytes(), nil
}
