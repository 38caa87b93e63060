// Package main hosts the pendant CLI.
//
// The Cobra command tree covers ledger maintenance, one-shot scans of a
// recorder directory, dependency and recorder status, and configuration
// scaffolding. Commands talk to the ledger database directly; when pendantd
// holds the instance lock the ledger is opened without crash recovery so the
// daemon's in-flight claims are left alone.
package main
