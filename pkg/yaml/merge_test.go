package yaml_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/simplerules/pkg/yaml"
)

func TestMergeRootFromValue(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		value  any
		input  string
		want   string
		errMsg string
	}{
		"adds a section": {
			input: "kind: Configuration\n",
			value: map[string]string{"apiVersion": "v1"},
			want:  "kind: Configuration\napiVersion: v1\n",
		},
		"replaces a value": {
			input: "rulesDir: simple.d\n",
			value: map[string]string{"rulesDir": "rules.d"},
			want:  "rulesDir: rules.d\n",
		},
		"keeps comments": {
			input: "# Local overrides.\nkind: Configuration\n",
			value: map[string]string{"apiVersion": "v1"},
			want:  "# Local overrides.\nkind: Configuration\napiVersion: v1\n",
		},
		"adds a nested section": {
			input: "kind: Configuration\n",
			value: map[string]any{
				"daemon": map[string]string{
					"procRoot": "/proc",
				},
			},
			want: "kind: Configuration\ndaemon:\n  procRoot: /proc\n",
		},
		"empty document": {
			input:  "",
			value:  map[string]string{"kind": "Configuration"},
			errMsg: "merge yaml",
		},
		"invalid document": {
			input:  "daemon: [procRoot",
			value:  map[string]string{"kind": "Configuration"},
			errMsg: "parse yaml",
		},
		"nil value": {
			input:  "kind: Configuration",
			errMsg: "merge yaml",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := yaml.MergeRootFromValue([]byte(tc.input), tc.value)
			if tc.errMsg != "" {
				require.ErrorContains(t, err, tc.errMsg)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestMergeRootFromValue_NilValue(t *testing.T) {
	t.Parallel()

	_, err := yaml.MergeRootFromValue([]byte("kind: Configuration\n"), nil)
	require.ErrorIs(t, err, yaml.ErrNilValue)
}
