// Package api holds the configuration file types and the helpers used to
// read and write them.
package api

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/macropower/simplerules/pkg/yaml"
)

const (
	// DefaultConfigDir is the ulatencyd configuration directory.
	DefaultConfigDir = "/etc/ulatencyd"
	// EnvConfigDir overrides [DefaultConfigDir].
	EnvConfigDir = "SIMPLERULES_CONFIG_DIR"
)

// ConfigDir returns $SIMPLERULES_CONFIG_DIR if set, else [DefaultConfigDir].
func ConfigDir() string {
	if dir, ok := os.LookupEnv(EnvConfigDir); ok && dir != "" {
		return dir
	}

	return DefaultConfigDir
}

// GetConfigPath returns the path to a file in [ConfigDir].
func GetConfigPath(filename string) string {
	return filepath.Join(ConfigDir(), filename)
}

// ReadFile reads a regular file from fs.
func ReadFile(fs afero.Fs, path string) ([]byte, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: path is a directory", path)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: unknown file state", path)
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// MarshalYAML serializes an object to YAML bytes.
func MarshalYAML(obj any) ([]byte, error) {
	b, err := yaml.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}

	return b, nil
}

// WriteDefaultFile writes data to path unless a file already exists there.
// Using force backs up and replaces an existing file.
func WriteDefaultFile(fs afero.Fs, path string, data []byte, force bool, kind string) error {
	fileExists := false

	info, err := fs.Stat(path)
	if err == nil {
		switch {
		case info.Mode().IsRegular():
			fileExists = true
		case info.IsDir():
			return fmt.Errorf("%s: path is a directory", path)
		default:
			return fmt.Errorf("%s: unknown file state", path)
		}
	}

	err = fs.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	if fileExists && force {
		backupFile := fmt.Sprintf("%s.%d.old", filepath.Base(path), time.Now().UnixNano())
		backupPath := filepath.Join(filepath.Dir(path), backupFile)
		slog.Info("backing up existing file",
			slog.String("type", kind),
			slog.String("path", backupPath),
		)

		err = fs.Rename(path, backupPath)
		if err != nil {
			return fmt.Errorf("rename existing %s file to backup: %w", kind, err)
		}

		fileExists = false
	}

	if fileExists {
		slog.Debug("file already exists, skipping write",
			slog.String("type", kind),
			slog.String("path", path),
		)

		return nil
	}

	slog.Info("write default file",
		slog.String("type", kind),
		slog.String("path", path),
	)

	err = afero.WriteFile(fs, path, data, 0o644)
	if err != nil {
		return fmt.Errorf("write %s file: %w", kind, err)
	}

	return nil
}
