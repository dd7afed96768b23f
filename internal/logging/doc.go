// Package logging provides the leveled printf-style logger used across the
// downloader service. Output goes through zap; a rotated JSON copy is written
// with lumberjack when LOG_FILE is set.
//
// Levels:
//   - DEBUG: registry decisions, command lines, route tables
//   - INFO: registrations, sweeps, startup summary
//   - WARN: expired or vanished artifacts, recoverable filesystem errors
//   - ERROR: failed downloads and conversions
//   - FATAL: startup failures that terminate the process
//
// The level comes from DEBUG (truthy forces debug) or LOG_LEVEL.
package logging
