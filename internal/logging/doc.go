// Package logging constructs the slog loggers used throughout caseport.
//
// Loggers write to stdout/stderr and optionally to a log file, in either
// console or JSON format. Helper constructors mirror slog attribute
// functions so call sites stay terse.
package logging
