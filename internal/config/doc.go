// Package config loads, normalizes, and validates gavel's TOML
// configuration: storage paths, per-source sync cadences, dedup
// thresholds, pipeline stage weights, and logging options.
package config
