// Package config loads, normalizes, and validates recap configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GEMINI_API_KEY and ELEVENLABS_API_KEY. The Config type centralizes every
// knob the CLI and pipeline need, so downstream code receives sanitized paths
// and clear validation errors.
package config
