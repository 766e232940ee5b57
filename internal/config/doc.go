// Package config loads, normalizes, and validates caseport configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and keeps every knob the CLI needs in one
// place. Always obtain settings through this package so downstream code
// receives sanitized paths, canonical enum values, and clear validation
// errors.
package config
