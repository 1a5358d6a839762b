// Package config loads simplerules configuration files.
//
// Files are decoded as YAML, validated against the JSON schema reflected
// from the configuration types, and then checked by the type itself.
// Errors point at the offending line of the source file.
package config
