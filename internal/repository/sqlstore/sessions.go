package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reflection-journal/internal/domain"
)

// CreateSession inserts the session with no turns.
func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	if sess.ID == "" || sess.Owner == "" {
		return errors.New("sqlstore: CreateSession: id and owner are required")
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sessions (id, owner, name, started_at, turns) VALUES (?, ?, ?, ?, 0)`),
		sess.ID, sess.Owner, sess.Name, sess.StartedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("sqlstore: CreateSession: %w", err)
	}
	return nil
}

// GetSession loads the session and its turns in order.
func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var sess domain.Session
	var started string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, owner, name, started_at FROM sessions WHERE id = ?`), id).
		Scan(&sess.ID, &sess.Owner, &sess.Name, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("sqlstore: GetSession %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("sqlstore: GetSession: %w", err)
	}
	if sess.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return domain.Session{}, fmt.Errorf("sqlstore: GetSession parse started_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT role, body FROM session_turns WHERE session_id = ? ORDER BY seq`), id)
	if err != nil {
		return domain.Session{}, fmt.Errorf("sqlstore: GetSession turns: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var role, body string
		if err := rows.Scan(&role, &body); err != nil {
			return domain.Session{}, fmt.Errorf("sqlstore: GetSession scan: %w", err)
		}
		sess.Turns = append(sess.Turns, domain.Turn{Role: domain.Role(role), Text: body})
	}
	if err := rows.Err(); err != nil {
		return domain.Session{}, fmt.Errorf("sqlstore: GetSession turns: %w", err)
	}
	return sess, nil
}

// AppendTurns stores turns after the first expected ones in one transaction.
// If the session holds a different number of turns, is gone or has a live
// finish claim, it returns domain.ErrConflict and writes nothing.
func (s *Store) AppendTurns(ctx context.Context, id string, expected int, turns ...domain.Turn) (err error) {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: AppendTurns begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, s.rebind(`
		UPDATE sessions SET turns = ? WHERE id = ? AND turns = ? AND claim_until <= ?`),
		expected+len(turns), id, expected, s.now().Unix())
	if err != nil {
		return fmt.Errorf("sqlstore: AppendTurns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: AppendTurns: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlstore: AppendTurns %q: %w", id, domain.ErrConflict)
	}
	for i, t := range turns {
		if _, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO session_turns (session_id, seq, role, body) VALUES (?, ?, ?, ?)`),
			id, expected+i, string(t.Role), t.Text); err != nil {
			return fmt.Errorf("sqlstore: AppendTurns insert: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: AppendTurns commit: %w", err)
	}
	return nil
}

// ClaimSession marks the session as being finished until the given time.
// It fails with domain.ErrConflict while another claim is live or when the
// session does not exist.
func (s *Store) ClaimSession(ctx context.Context, id string, until time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE sessions SET claim_until = ? WHERE id = ? AND claim_until <= ?`),
		until.Unix(), id, s.now().Unix())
	if err != nil {
		return fmt.Errorf("sqlstore: ClaimSession: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: ClaimSession: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlstore: ClaimSession %q: %w", id, domain.ErrConflict)
	}
	return nil
}

// ReleaseSession drops a finish claim. Missing sessions are not an error.
func (s *Store) ReleaseSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`UPDATE sessions SET claim_until = 0 WHERE id = ?`), id); err != nil {
		return fmt.Errorf("sqlstore: ReleaseSession: %w", err)
	}
	return nil
}

// DeleteSession removes the session and its turns. Missing sessions are not
// an error.
func (s *Store) DeleteSession(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: DeleteSession begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM session_turns WHERE session_id = ?`), id); err != nil {
		return fmt.Errorf("sqlstore: DeleteSession turns: %w", err)
	}
	if _, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE id = ?`), id); err != nil {
		return fmt.Errorf("sqlstore: DeleteSession: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: DeleteSession commit: %w", err)
	}
	return nil
}
