package v1beta1_test

import (
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/simplerules/api/v1beta1"
)

func TestTypeMeta(t *testing.T) {
	t.Parallel()

	tm := v1beta1.TypeMeta{
		APIVersion: v1beta1.APIVersion,
		Kind:       "Configuration",
	}

	assert.Equal(t, "simplerules.ulatencyd.org/v1beta1", tm.GetAPIVersion())
	assert.Equal(t, "Configuration", tm.GetKind())
}

func newMetaSchema(props ...string) *jsonschema.Schema {
	jss := &jsonschema.Schema{
		Properties: jsonschema.NewProperties(),
	}
	for _, p := range props {
		jss.Properties.Set(p, &jsonschema.Schema{Type: "string"})
	}

	return jss
}

func TestExtendSchemaWithEnums(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		required    []string
		apiVersions []string
		kinds       []string
	}{
		"current version": {
			apiVersions: v1beta1.ValidAPIVersions,
			kinds:       []string{"Configuration"},
		},
		"several kinds": {
			apiVersions: []string{"v1", "v1beta1"},
			kinds:       []string{"Configuration", "Rules"},
		},
		"already required": {
			required:    []string{"kind"},
			apiVersions: []string{"v1"},
			kinds:       []string{"Configuration"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			jss := newMetaSchema("apiVersion", "kind")
			jss.Required = tc.required

			v1beta1.ExtendSchemaWithEnums(jss, tc.apiVersions, tc.kinds)

			apiVersion, ok := jss.Properties.Get("apiVersion")
			require.True(t, ok)
			require.Len(t, apiVersion.Enum, len(tc.apiVersions))

			for i, v := range tc.apiVersions {
				assert.Equal(t, v, apiVersion.Enum[i])
			}

			kind, ok := jss.Properties.Get("kind")
			require.True(t, ok)
			require.Len(t, kind.Enum, len(tc.kinds))

			for i, k := range tc.kinds {
				assert.Equal(t, k, kind.Enum[i])
			}

			assert.ElementsMatch(t, []string{"apiVersion", "kind"}, jss.Required)
		})
	}
}

func TestExtendSchemaWithEnums_Panics(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		props []string
	}{
		"missing apiVersion": {props: []string{"kind"}},
		"missing kind":       {props: []string{"apiVersion"}},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			jss := newMetaSchema(tc.props...)

			assert.Panics(t, func() {
				v1beta1.ExtendSchemaWithEnums(jss, []string{"v1"}, []string{"Configuration"})
			})
		})
	}
}
