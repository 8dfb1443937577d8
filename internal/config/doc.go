// Package config loads server configuration from defaults, an optional JSON
// or YAML file, and DUEUE_* environment variables, in that order of
// precedence (later wins).
package config
