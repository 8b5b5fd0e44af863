// Package config loads the core configuration from YAML, .env files and
// process environment variables. Unknown options are ignored, and invalid
// values never abort startup: Normalize substitutes safe defaults and
// reports each substitution as a CONFIG_INVALID warning.
package config
