// Package daemon owns the lifecycle of the long-running pendant process.
//
// It holds a flock-based lock so only one instance watches the recorder at a
// time, runs the workflow orchestrator in the background, and reports a
// combined status of the orchestrator and the processed-file ledger. Process
// concerns such as signals, log files, and the pid file live in daemonrun.
package daemon
