package ledger

import (
	"database/sql"
	"errors"
	"time"
)

const entryColumns = "identity, status, source_path, failure_reason, attempts, crash_retries, held, created_at, updated_at, completed_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		identity     string
		status       string
		sourcePath   sql.NullString
		reason       sql.NullString
		attempts     int
		crashRetries int
		held         int
		createdRaw   string
		updatedRaw   string
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&identity,
		&status,
		&sourcePath,
		&reason,
		&attempts,
		&crashRetries,
		&held,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		Identity:      identity,
		Status:        Status(status),
		SourcePath:    sourcePath.String,
		FailureReason: reason.String,
		Attempts:      attempts,
		CrashRetries:  crashRetries,
		Held:          held != 0,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		entry.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			entry.CompletedAt = &completed
		}
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
