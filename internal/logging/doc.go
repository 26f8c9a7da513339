// Package logging provides opt-in file-based logging with rotation for txindex.
// When the --debug flag is set, structured JSON logs are written to ~/.txindex/logs/
// for troubleshooting lock and transaction problems.
//
// By default (without --debug), logging is minimal and goes to stderr only.
package logging
