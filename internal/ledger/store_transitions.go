package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// TryClaim atomically hands identity to the caller. It succeeds when there is
// no entry yet or the entry is PENDING and not held; the entry is then
// PENDING and held until MarkDone, MarkFailedPermanent, or Release.
func (s *Store) TryClaim(ctx context.Context, identity, sourcePath string) (bool, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return false, errors.New("claim: identity is required")
	}
	var claimed bool
	err := s.immediate(ctx, func(conn *sql.Conn) error {
		claimed = false
		var (
			status string
			held   int
		)
		err := conn.QueryRowContext(ctx, `SELECT status, held FROM entries WHERE identity = ?`, identity).Scan(&status, &held)
		now := s.timestamp()
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := conn.ExecContext(ctx,
				`INSERT INTO entries (identity, status, source_path, attempts, held, created_at, updated_at)
                 VALUES (?, ?, ?, 1, 1, ?, ?)`,
				identity, StatusPending, nullableString(sourcePath), now, now,
			); err != nil {
				return err
			}
			claimed = true
			return nil
		case err != nil:
			return err
		}
		if Status(status) != StatusPending || held != 0 {
			return nil
		}
		if _, err := conn.ExecContext(ctx,
			`UPDATE entries SET held = 1, attempts = attempts + 1, source_path = COALESCE(?, source_path), updated_at = ?
             WHERE identity = ?`,
			nullableString(sourcePath), now, identity,
		); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", identity, err)
	}
	return claimed, nil
}

// MarkDone records that a note was created for identity. Terminal entries are left untouched.
func (s *Store) MarkDone(ctx context.Context, identity string) error {
	return s.finish(ctx, identity, StatusDone, "")
}

// MarkFailedPermanent records a permanent failure. Terminal entries are left untouched.
func (s *Store) MarkFailedPermanent(ctx context.Context, identity, reason string) error {
	return s.finish(ctx, identity, StatusFailedPermanent, reason)
}

func (s *Store) finish(ctx context.Context, identity string, status Status, reason string) error {
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO entries (identity, status, failure_reason, held, created_at, updated_at, completed_at)
         VALUES (?, ?, ?, 0, ?, ?, ?)
         ON CONFLICT(identity) DO UPDATE SET
             status = excluded.status,
             failure_reason = excluded.failure_reason,
             held = 0,
             updated_at = excluded.updated_at,
             completed_at = excluded.completed_at
         WHERE entries.status = 'PENDING'`,
		identity, status, nullableString(reason), now, now, now,
	); err != nil {
		return fmt.Errorf("mark %s %s: %w", identity, status, err)
	}
	return nil
}

// Release returns a PENDING entry to the claimable pool after a transient
// failure, recording reason for operators.
func (s *Store) Release(ctx context.Context, identity, reason string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE entries SET held = 0, failure_reason = ?, updated_at = ?
         WHERE identity = ? AND status = 'PENDING'`,
		nullableString(reason), s.timestamp(), identity,
	); err != nil {
		return fmt.Errorf("release %s: %w", identity, err)
	}
	return nil
}

// recoverInterrupted handles entries still held from a previous process. The
// first interruption releases the entry and counts it; a second one fails it.
func (s *Store) recoverInterrupted(ctx context.Context) (Recovery, error) {
	var rec Recovery
	err := s.immediate(ctx, func(conn *sql.Conn) error {
		rec = Recovery{}
		now := s.timestamp()
		res, err := conn.ExecContext(ctx,
			`UPDATE entries SET status = ?, held = 0, failure_reason = ?, updated_at = ?, completed_at = ?
             WHERE held = 1 AND status = 'PENDING' AND crash_retries >= 1`,
			StatusFailedPermanent, InterruptedReason, now, now,
		)
		if err != nil {
			return err
		}
		failed, _ := res.RowsAffected()

		res, err = conn.ExecContext(ctx,
			`UPDATE entries SET held = 0, crash_retries = crash_retries + 1, failure_reason = 'interrupted', updated_at = ?
             WHERE held = 1 AND status = 'PENDING'`,
			now,
		)
		if err != nil {
			return err
		}
		released, _ := res.RowsAffected()

		// held has no meaning on terminal rows; clear any stray flag.
		if _, err := conn.ExecContext(ctx, `UPDATE entries SET held = 0 WHERE held = 1`); err != nil {
			return err
		}
		rec = Recovery{Released: int(released), Failed: int(failed)}
		return nil
	})
	if err != nil {
		return Recovery{}, fmt.Errorf("recover interrupted entries: %w", err)
	}
	return rec, nil
}
