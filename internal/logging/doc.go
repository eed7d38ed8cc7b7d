// Package logging builds the slog loggers used across gavel and
// standardizes structured field names so sync and pipeline events stay
// greppable across components.
package logging
