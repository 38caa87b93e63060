package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Status is the processing state of a recording identity.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusDone            Status = "DONE"
	StatusFailedPermanent Status = "FAILED_PERMANENT"
)

// InterruptedReason is recorded when a recording was in flight during two crashes.
const InterruptedReason = "interrupted repeatedly"

var allStatuses = []Status{StatusPending, StatusDone, StatusFailedPermanent}

// AllStatuses returns every known status in display order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus accepts status names case-insensitively, including the short
// forms "failed" and "done".
func ParseStatus(value string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "PENDING":
		return StatusPending, nil
	case "DONE":
		return StatusDone, nil
	case "FAILED", "FAILED_PERMANENT":
		return StatusFailedPermanent, nil
	}
	return "", fmt.Errorf("unknown ledger status %q", value)
}

// Terminal reports whether the status is final for an identity.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailedPermanent
}

// Entry is one recording's ledger row.
type Entry struct {
	Identity      string
	Status        Status
	SourcePath    string
	FailureReason string
	Attempts      int
	CrashRetries  int
	Held          bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// Recovery summarizes the crash recovery performed by Open.
type Recovery struct {
	Released int
	Failed   int
}
