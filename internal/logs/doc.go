// Package logs reads the daemon's log file for the CLI.
//
// Last returns the trailing lines with bounded memory, and Follow streams
// lines appended afterwards until its context ends. Follow rereads from the
// start when the file shrinks, which happens when pendantd restarts and the
// pendant.log link moves to a new run's file.
package logs
