// Package logging configures the slog logger used by dirwatch.
//
// Console output goes to stderr, as human-readable text when stderr is a
// terminal and as JSON otherwise. An optional log file receives the same
// records and is rotated by size. Registration and dispatch traces are
// emitted at debug level and only appear when --debug is set.
package logging
