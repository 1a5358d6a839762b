// Package configs provides the Configuration kind for simplerules.
package configs

//go:generate go run ../../../internal/schemagen -o config.v1beta1.json

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/spf13/afero"

	_ "embed"

	"github.com/macropower/simplerules/api"
	"github.com/macropower/simplerules/api/v1beta1"
	"github.com/macropower/simplerules/pkg/filter"
	"github.com/macropower/simplerules/pkg/rule"
	"github.com/macropower/simplerules/pkg/yaml"
)

const (
	// Kind is the kind of the simplerules configuration.
	Kind = "Configuration"
	// FileName is the configuration file name within [api.ConfigDir].
	FileName = "simplerules.yaml"

	// DefaultProcRoot is the default mount point of the proc filesystem.
	DefaultProcRoot = "/proc"
	// DefaultInterval is the default time between scheduling passes.
	DefaultInterval = 10 * time.Second
)

var (
	//go:embed config.yaml
	defaultConfigYAML []byte

	// ValidKinds contains the valid kind values for configurations.
	ValidKinds = []string{Kind}

	// DefaultValidator validates configuration against the reflected JSON
	// schema.
	DefaultValidator = yaml.MustNewValidator("/configs.v1beta1.json", yaml.NewSchemaGenerator(&Config{}))

	// ErrInvalidConfig is returned by [Config.Validate].
	ErrInvalidConfig = errors.New("invalid configuration")

	// Compile-time interface checks.
	_ v1beta1.Object = (*Config)(nil)
)

// Config represents the simplerules configuration.
//
//nolint:recvcheck // Must satisfy the jsonschema interface.
type Config struct {
	SimpleRules      *SimpleRulesConfig `json:"simplerules,omitempty" jsonschema:"title=Simple Rules"`
	Daemon           *DaemonConfig      `json:"daemon,omitempty"      jsonschema:"title=Daemon"`
	v1beta1.TypeMeta `json:",inline"`
}

// SimpleRulesConfig configures where rules are read from and how they match.
type SimpleRulesConfig struct {
	// ConfigDir holds the rule directory and the rule file.
	ConfigDir string `json:"configDir,omitempty" jsonschema:"title=Config Directory"`
	// RulesDir is the directory of *.conf rule files. Relative paths are
	// resolved against ConfigDir.
	RulesDir string `json:"rulesDir,omitempty" jsonschema:"title=Rules Directory"`
	// RulesFile is read after RulesDir. Relative paths are resolved against
	// ConfigDir.
	RulesFile string `json:"rulesFile,omitempty" jsonschema:"title=Rules File"`
	// DisabledRules lists rule files to skip, by name without .conf.
	DisabledRules []string `json:"disabledRules,omitempty" jsonschema:"title=Disabled Rules"`
	// RegexTimeout bounds a single regular expression match.
	RegexTimeout time.Duration `json:"regexTimeout,omitempty" jsonschema:"title=Regex Timeout"`
}

// DaemonConfig configures the standalone scheduling loop.
type DaemonConfig struct {
	// ProcRoot is the mount point of the proc filesystem.
	ProcRoot string `json:"procRoot,omitempty" jsonschema:"title=Proc Root"`
	// Interval is the time between scheduling passes.
	Interval time.Duration `json:"interval,omitempty" jsonschema:"title=Interval"`
}

// New creates a new [Config] with default values.
func New() *Config {
	c := &Config{
		TypeMeta: v1beta1.TypeMeta{
			APIVersion: v1beta1.APIVersion,
			Kind:       Kind,
		},
	}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults initializes nil and zero fields to their default values.
func (c *Config) EnsureDefaults() {
	if c.SimpleRules == nil {
		c.SimpleRules = &SimpleRulesConfig{}
	}

	c.SimpleRules.EnsureDefaults()

	if c.Daemon == nil {
		c.Daemon = &DaemonConfig{}
	}

	c.Daemon.EnsureDefaults()
}

// EnsureDefaults sets zero fields to their default values.
func (c *SimpleRulesConfig) EnsureDefaults() {
	if c.ConfigDir == "" {
		c.ConfigDir = api.ConfigDir()
	}
	if c.RulesDir == "" {
		c.RulesDir = filter.DefaultRulesDir
	}
	if c.RulesFile == "" {
		c.RulesFile = filter.DefaultRulesFile
	}
	if c.RegexTimeout == 0 {
		c.RegexTimeout = rule.DefaultRegexTimeout
	}
}

// EnsureDefaults sets zero fields to their default values.
func (c *DaemonConfig) EnsureDefaults() {
	if c.ProcRoot == "" {
		c.ProcRoot = DefaultProcRoot
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.SimpleRules != nil {
		if c.SimpleRules.RegexTimeout < 0 {
			errs = append(errs, fmt.Errorf("simplerules.regexTimeout: negative duration %s", c.SimpleRules.RegexTimeout))
		}

		for i, name := range c.SimpleRules.DisabledRules {
			if name == "" || strings.ContainsRune(name, '/') {
				errs = append(errs, fmt.Errorf("simplerules.disabledRules[%d]: invalid rule name %q", i, name))
			}
		}
	}

	if c.Daemon != nil && c.Daemon.Interval < 0 {
		errs = append(errs, fmt.Errorf("daemon.interval: negative duration %s", c.Daemon.Interval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	return nil
}

// FilterOptions returns the options for [filter.NewSimpleRules].
func (c *SimpleRulesConfig) FilterOptions() []filter.SimpleRulesOpt {
	return []filter.SimpleRulesOpt{
		filter.WithConfigDir(c.ConfigDir),
		filter.WithRulesDir(c.RulesDir),
		filter.WithRulesFile(c.RulesFile),
		filter.WithDisabledRules(c.DisabledRules...),
		filter.WithRegexTimeout(c.RegexTimeout),
	}
}

func (c Config) JSONSchemaExtend(jss *jsonschema.Schema) {
	v1beta1.ExtendSchemaWithEnums(jss, v1beta1.ValidAPIVersions, ValidKinds)
}

// MarshalYAML serializes the config to YAML.
func (c Config) MarshalYAML() ([]byte, error) {
	type alias Config

	b, err := api.MarshalYAML(alias(c))
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	return b, nil
}

// DefaultYAML returns the embedded default configuration file.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultConfigYAML...)
}

// WriteDefault writes the embedded default config.yaml to the specified path.
func WriteDefault(fs afero.Fs, path string, force bool) error {
	err := api.WriteDefaultFile(fs, path, defaultConfigYAML, force, "configuration")
	if err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	return nil
}

// GetPath returns the path to the configuration file.
func GetPath() string {
	return api.GetConfigPath(FileName)
}

// Schema returns the JSON schema of [Config].
func Schema() ([]byte, error) {
	b, err := yaml.NewSchemaGenerator(&Config{}).Generate()
	if err != nil {
		return nil, fmt.Errorf("generate schema: %w", err)
	}

	return b, nil
}
