// Package workflow drives recordings from attached volumes into the vault.
//
// The Orchestrator consumes watcher events, scans each attached volume at most
// once at a time, claims every stable candidate in the ledger, and hands the
// claimed recordings to a bounded worker pool running the pipeline. Outcomes
// are written back to the ledger: DONE and FAILED_PERMANENT are final,
// transient failures release the claim so the next scan cycle retries them.
// A periodic rescan of attached volumes provides those scan cycles.
package workflow
