// Package config loads runtime configuration from YAML with FLOWFORGE_*
// environment overrides. Precedence: defaults, then file, then environment.
package config
