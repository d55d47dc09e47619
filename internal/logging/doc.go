// Package logging provides opt-in file-based logging with rotation for the
// indexing and retrieval pipeline. When debug logging is enabled, logs are
// written to ~/.codeintel/logs/ for troubleshooting.
//
// By default, logging is minimal and goes to stderr only.
package logging
