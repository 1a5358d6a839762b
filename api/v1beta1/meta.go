// Package v1beta1 contains the v1beta1 API types for simplerules configuration.
package v1beta1

import (
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"
)

// APIVersion is the current API version for all simplerules configuration kinds.
const APIVersion = "simplerules.ulatencyd.org/v1beta1"

// ValidAPIVersions contains all valid API versions.
var ValidAPIVersions = []string{APIVersion}

// TypeMeta contains the API version and kind metadata common to all config types.
type TypeMeta struct {
	// APIVersion specifies the API version for this configuration.
	APIVersion string `json:"apiVersion" jsonschema:"title=API Version"`
	// Kind defines the type of configuration.
	Kind string `json:"kind" jsonschema:"title=Kind"`
}

// GetAPIVersion returns the API version.
func (tm TypeMeta) GetAPIVersion() string {
	return tm.APIVersion
}

// GetKind returns the kind.
func (tm TypeMeta) GetKind() string {
	return tm.Kind
}

// Object is the interface that all config types implement.
type Object interface {
	GetAPIVersion() string
	GetKind() string
	EnsureDefaults()
	Validate() error
}

// ExtendSchemaWithEnums restricts apiVersion and kind to the given values
// and marks both as required. It panics if either property is missing.
func ExtendSchemaWithEnums(jss *jsonschema.Schema, apiVersions, kinds []string) {
	setEnum(jss, "apiVersion", apiVersions)
	setEnum(jss, "kind", kinds)
}

func setEnum(jss *jsonschema.Schema, name string, values []string) {
	prop, ok := jss.Properties.Get(name)
	if !ok {
		panic(fmt.Sprintf("%s property not found in schema", name))
	}

	for _, v := range values {
		prop.Enum = append(prop.Enum, v)
	}

	if !slices.Contains(jss.Required, name) {
		jss.Required = append(jss.Required, name)
	}
}
