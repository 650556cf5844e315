// Package config loads and validates wa-gateway configuration from a YAML
// file with ${VAR} expansion, falling back to environment-only defaults
// (PORT, DATABASE_URL, LOG_LEVEL) when no file exists.
package config
