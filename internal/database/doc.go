// Package database keeps an SQLite audit log of the artifacts the service has
// produced and why each one went away.
//
// The log is write-mostly. The registry never reads it back; it exists for
// the diagnostic endpoints and for operators. Writes arrive through a
// Recorder, which queues registry events so that registry calls never wait
// on disk.
package database
