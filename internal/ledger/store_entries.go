package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrAmbiguous is returned by Resolve when a prefix matches several identities.
var ErrAmbiguous = errors.New("identity prefix is ambiguous")

// ErrNotFound is returned when no entry matches.
var ErrNotFound = errors.New("ledger entry not found")

// Lookup returns the status recorded for identity.
func (s *Store) Lookup(ctx context.Context, identity string) (Status, bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM entries WHERE identity = ?`, identity).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup %s: %w", identity, err)
	}
	return Status(status), true, nil
}

// Get returns the full entry for identity, or nil when absent.
func (s *Store) Get(ctx context.Context, identity string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE identity = ?`, identity)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", identity, err)
	}
	return entry, nil
}

// List returns entries with the given statuses, newest first. No statuses lists everything.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY updated_at DESC, identity`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Resolve expands an identity prefix, as shown by the CLI, to the full identity.
func (s *Store) Resolve(ctx context.Context, prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity FROM entries WHERE substr(identity, 1, ?) = ? LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", prefix, err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return "", err
		}
		matches = append(matches, identity)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguous, prefix)
	}
}

// Retry forgets FAILED_PERMANENT entries so the next scan picks the files up
// again. With no identities every failed entry is cleared.
func (s *Store) Retry(ctx context.Context, identities ...string) (int64, error) {
	query := `DELETE FROM entries WHERE status = 'FAILED_PERMANENT'`
	args := make([]any, 0, len(identities))
	if len(identities) > 0 {
		query += ` AND identity IN (` + makePlaceholders(len(identities)) + `)`
		for _, id := range identities {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed entries: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes an entry regardless of status. A held entry is refused.
func (s *Store) Remove(ctx context.Context, identity string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM entries WHERE identity = ? AND held = 0`, identity)
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", identity, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(allStatuses))
	for _, status := range allStatuses {
		stats[status] = 0
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}
