package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/macropower/simplerules/api"
	"github.com/macropower/simplerules/api/v1beta1/configs"
	"github.com/macropower/simplerules/pkg/yaml"
)

type ConfigWriteArgs struct {
	*RootArgs

	Force bool
	Merge bool
}

func (ca *ConfigWriteArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&ca.Force, "force", "f", false, "Back up and replace an existing file")
	cmd.Flags().BoolVar(&ca.Merge, "merge", false, "Add missing sections to an existing file")
}

func NewConfigCmd(ra *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the simplerules configuration file",
	}

	cmd.AddCommand(
		newConfigWriteCmd(&ConfigWriteArgs{RootArgs: ra}),
		newConfigShowCmd(ra),
		newConfigSchemaCmd(),
	)

	return cmd
}

func newConfigWriteCmd(ca *ConfigWriteArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return configWrite(ca)
		},
	}
	ca.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func configWrite(ca *ConfigWriteArgs) error {
	path := ca.GetConfigPath()

	if !ca.Merge {
		return configs.WriteDefault(ca.Fs, path, ca.Force)
	}

	data, err := api.ReadFile(ca.Fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return configs.WriteDefault(ca.Fs, path, false)
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	merged, err := mergeMissingSections(data)
	if err != nil {
		return err
	}
	if merged == nil {
		return nil
	}

	err = api.WriteDefaultFile(ca.Fs, path, merged, true, "configuration")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// mergeMissingSections adds the default value of every top-level section
// that data lacks. It returns nil when nothing is missing.
func mergeMissingSections(data []byte) ([]byte, error) {
	var current, defaults map[string]any

	err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&current)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	b, err := configs.New().MarshalYAML()
	if err != nil {
		return nil, err //nolint:wrapcheck // Already wrapped.
	}

	err = yaml.NewDecoder(bytes.NewReader(b)).Decode(&defaults)
	if err != nil {
		return nil, fmt.Errorf("decode defaults: %w", err)
	}

	missing := map[string]any{}
	for key, value := range defaults {
		if _, ok := current[key]; !ok {
			missing[key] = value
		}
	}

	if len(missing) == 0 {
		return nil, nil
	}

	merged, err := yaml.MergeRootFromValue(data, missing)
	if err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}

	return merged, nil
}

func newConfigShowCmd(ra *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ra.LoadConfig()
			if err != nil {
				return err
			}

			b, err := cfg.MarshalYAML()
			if err != nil {
				return fmt.Errorf("marshal config yaml: %w", err)
			}

			mustN(cmd.OutOrStdout().Write(b))

			return nil
		},
	}
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := configs.Schema()
			if err != nil {
				return err //nolint:wrapcheck // Already wrapped.
			}

			mustN(fmt.Fprintln(cmd.OutOrStdout(), string(b)))

			return nil
		},
	}
}
