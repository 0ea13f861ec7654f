// Package config loads, normalizes, and validates urban-lullaby configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// STREAM_KEY and SEARCH_TERM. The Config type centralizes every knob the
// daemon and CLI need so the catalogue, media engine, and stream endpoint are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
