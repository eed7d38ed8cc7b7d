// Package sources defines the adapter contract every hearing data
// source implements, the typed error taxonomy the sync orchestrator
// classifies failures with, and the registry the scheduler resolves
// adapters from.
package sources
