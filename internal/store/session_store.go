package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"gumshoe/internal/logging"
	"gumshoe/internal/types"
)

// =============================================================================
// SESSION INDEX ((user, client) -> session)
// =============================================================================
//
// The session row is the single owning record; user and case lookups are
// derived by query so the indices cannot drift apart. All writes for one
// resolution happen in one transaction.

// ResolveSession returns the live session for the (user, client) pair within
// TTL, or creates one. The returned bool is true when a new session was
// created. A different client for the same user always gets an independent
// session.
func (s *LocalStore) ResolveSession(userID, clientID string, ttl time.Duration) (*types.Session, bool, error) {
	if userID == "" || clientID == "" {
		return nil, false, types.NewValidation("session", "user id and client id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, types.NewTransient("ResolveSession", err)
	}
	defer tx.Rollback()

	var sess types.Session
	err = tx.QueryRow(
		`SELECT id, user_id, client_id, COALESCE(case_id, ''), created_at, last_seen_at, expires_at
		 FROM sessions WHERE user_id = ? AND client_id = ?`,
		userID, clientID,
	).Scan(&sess.ID, &sess.UserID, &sess.ClientID, &sess.CaseID, &sess.CreatedAt, &sess.LastSeenAt, &sess.ExpiresAt)

	switch {
	case err == sql.ErrNoRows:
		sess = types.Session{
			ID:         uuid.NewString(),
			UserID:     userID,
			ClientID:   clientID,
			CreatedAt:  now,
			LastSeenAt: now,
			ExpiresAt:  now.Add(ttl),
		}
		_, err = tx.Exec(
			`INSERT INTO sessions (id, user_id, client_id, case_id, created_at, last_seen_at, expires_at)
			 VALUES (?, ?, ?, NULL, ?, ?, ?)`,
			sess.ID, userID, clientID, sess.CreatedAt, sess.LastSeenAt, sess.ExpiresAt,
		)
		if err != nil {
			return nil, false, types.NewTransient("ResolveSession", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, types.NewTransient("ResolveSession", err)
		}
		logging.Session("Created session %s for user=%s client=%s", sess.ID, userID, clientID)
		return &sess, true, nil

	case err != nil:
		return nil, false, types.NewTransient("ResolveSession", err)
	}

	if sess.ExpiresAt.After(now) {
		// Live session: resume it.
		sess.LastSeenAt = now
		sess.ExpiresAt = now.Add(ttl)
		_, err = tx.Exec(
			`UPDATE sessions SET last_seen_at = ?, expires_at = ? WHERE id = ?`,
			sess.LastSeenAt, sess.ExpiresAt, sess.ID,
		)
		if err != nil {
			return nil, false, types.NewTransient("ResolveSession", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, types.NewTransient("ResolveSession", err)
		}
		logging.SessionDebug("Resumed session %s for user=%s client=%s", sess.ID, userID, clientID)
		return &sess, false, nil
	}

	// Expired: reuse the row (the unique index owns the pair) but issue a
	// fresh identity so the old session id never resumes.
	fresh := types.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		ClientID:   clientID,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	_, err = tx.Exec(
		`UPDATE sessions SET id = ?, case_id = NULL, created_at = ?, last_seen_at = ?, expires_at = ?
		 WHERE user_id = ? AND client_id = ?`,
		fresh.ID, fresh.CreatedAt, fresh.LastSeenAt, fresh.ExpiresAt, userID, clientID,
	)
	if err != nil {
		return nil, false, types.NewTransient("ResolveSession", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, types.NewTransient("ResolveSession", err)
	}
	logging.Session("Replaced expired session for user=%s client=%s with %s", userID, clientID, fresh.ID)
	return &fresh, true, nil
}

// GetSession loads a session by id, regardless of expiry.
func (s *LocalStore) GetSession(id string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sess types.Session
	err := s.db.QueryRow(
		`SELECT id, user_id, client_id, COALESCE(case_id, ''), created_at, last_seen_at, expires_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.ClientID, &sess.CaseID, &sess.CreatedAt, &sess.LastSeenAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrSessionNotFound
	}
	if err != nil {
		return nil, types.NewTransient("GetSession", err)
	}
	return &sess, nil
}

// BindCase attaches a case to a session.
func (s *LocalStore) BindCase(sessionID, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE sessions SET case_id = ? WHERE id = ?`, caseID, sessionID)
	if err != nil {
		return types.NewTransient("BindCase", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return types.ErrSessionNotFound
	}
	logging.SessionDebug("Bound case %s to session %s", caseID, sessionID)
	return nil
}

// SessionsForUser returns all sessions for a user, live or expired.
func (s *LocalStore) SessionsForUser(userID string) ([]types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, user_id, client_id, COALESCE(case_id, ''), created_at, last_seen_at, expires_at
		 FROM sessions WHERE user_id = ? ORDER BY last_seen_at DESC`, userID)
	if err != nil {
		return nil, types.NewTransient("SessionsForUser", err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		var sess types.Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.ClientID, &sess.CaseID,
			&sess.CreatedAt, &sess.LastSeenAt, &sess.ExpiresAt); err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}
