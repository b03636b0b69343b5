package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"gumshoe/internal/logging"
	"gumshoe/internal/types"
)

// =============================================================================
// CASE PERSISTENCE (primary record, versioned compare-and-swap)
// =============================================================================

// CreateCase inserts a new case with version 1 and the given TTL.
func (s *LocalStore) CreateCase(c *types.Case, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Version = 1
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	doc, err := json.Marshal(c)
	if err != nil {
		return types.NewValidation("case", "case not serializable: "+err.Error())
	}

	_, err = s.db.Exec(
		`INSERT INTO cases (id, user_id, status, phase, version, doc, created_at, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, string(c.Status), int(c.Phase), c.Version, string(doc),
		c.CreatedAt, c.UpdatedAt, now.Add(ttl),
	)
	if err != nil {
		logging.StoreError("CreateCase failed for %s: %v", c.ID, err)
		return types.NewTransient("CreateCase", err)
	}

	logging.Store("Created case %s for user %s", c.ID, c.UserID)
	return nil
}

// GetCase loads a case by id.
func (s *LocalStore) GetCase(id string) (*types.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCaseLocked(id)
}

func (s *LocalStore) getCaseLocked(id string) (*types.Case, error) {
	var doc string
	var version int64
	err := s.db.QueryRow(`SELECT doc, version FROM cases WHERE id = ?`, id).Scan(&doc, &version)
	if err == sql.ErrNoRows {
		return nil, types.ErrCaseNotFound
	}
	if err != nil {
		logging.StoreError("GetCase failed for %s: %v", id, err)
		return nil, types.NewTransient("GetCase", err)
	}

	var c types.Case
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, types.NewTransient("GetCase", err)
	}
	// The version column is authoritative; the doc copy may lag one save.
	c.Version = version
	return &c, nil
}

// SaveCase persists a case iff the stored version equals expectVersion.
// On success the case's version is bumped to expectVersion+1. A moved version
// yields ErrVersionConflict; the caller reloads and retries.
func (s *LocalStore) SaveCase(c *types.Case, expectVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return types.NewTransient("SaveCase", err)
	}
	defer tx.Rollback()

	if err := saveCaseTx(tx, c, expectVersion); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return types.NewTransient("SaveCase", err)
	}
	logging.StoreDebug("Saved case %s at version %d", c.ID, c.Version)
	return nil
}

// saveCaseTx performs the CAS update inside an open transaction.
func saveCaseTx(tx *sql.Tx, c *types.Case, expectVersion int64) error {
	c.Version = expectVersion + 1
	c.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(c)
	if err != nil {
		c.Version = expectVersion
		return types.NewValidation("case", "case not serializable: "+err.Error())
	}

	res, err := tx.Exec(
		`UPDATE cases SET user_id = ?, status = ?, phase = ?, version = ?, doc = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		c.UserID, string(c.Status), int(c.Phase), c.Version, string(doc), c.UpdatedAt,
		c.ID, expectVersion,
	)
	if err != nil {
		c.Version = expectVersion
		return types.NewTransient("SaveCase", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		c.Version = expectVersion
		return types.NewTransient("SaveCase", err)
	}
	if affected == 0 {
		c.Version = expectVersion
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM cases WHERE id = ?`, c.ID).Scan(&exists); err == nil && exists == 0 {
			return types.ErrCaseNotFound
		}
		return types.ErrVersionConflict
	}
	return nil
}

// ListCases returns all case ids for a user, newest first.
func (s *LocalStore) ListCases(userID string) ([]*types.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT doc, version FROM cases WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, types.NewTransient("ListCases", err)
	}
	defer rows.Close()

	var cases []*types.Case
	for rows.Next() {
		var doc string
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			continue
		}
		var c types.Case
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			continue
		}
		c.Version = version
		cases = append(cases, &c)
	}
	return cases, nil
}

// DeleteCase removes a case and all of its dependent rows in one transaction.
func (s *LocalStore) DeleteCase(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteCaseLocked(id)
}

func (s *LocalStore) deleteCaseLocked(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return types.NewTransient("DeleteCase", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM evidence_requests WHERE case_id = ?`,
		`DELETE FROM evidence_provided WHERE case_id = ?`,
		`DELETE FROM hypotheses WHERE case_id = ?`,
		`DELETE FROM case_vectors WHERE case_id = ?`,
		`UPDATE sessions SET case_id = NULL WHERE case_id = ?`,
		`DELETE FROM cases WHERE id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return types.NewTransient("DeleteCase", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return types.NewTransient("DeleteCase", err)
	}
	logging.Store("Deleted case %s", id)
	return nil
}

// TouchCase extends a case's expiry from now.
func (s *LocalStore) TouchCase(id string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE cases SET expires_at = ? WHERE id = ?`,
		time.Now().UTC().Add(ttl), id)
	if err != nil {
		return types.NewTransient("TouchCase", err)
	}
	return nil
}

// ApplyTurn persists one complete turn atomically: the CAS case save plus all
// dirty evidence requests, new evidence records, and dirty hypotheses. Either
// everything lands or nothing does.
func (s *LocalStore) ApplyTurn(c *types.Case, expectVersion int64,
	requests []types.EvidenceRequest, provided []types.EvidenceProvided,
	hypotheses []types.Hypothesis) error {

	timer := logging.StartTimer(logging.CategoryStore, "ApplyTurn")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return types.NewTransient("ApplyTurn", err)
	}
	defer tx.Rollback()

	if err := saveCaseTx(tx, c, expectVersion); err != nil {
		return err
	}
	for i := range requests {
		if err := upsertRequestTx(tx, &requests[i]); err != nil {
			return err
		}
	}
	for i := range provided {
		if err := insertProvidedTx(tx, &provided[i]); err != nil {
			return err
		}
	}
	for i := range hypotheses {
		if err := upsertHypothesisTx(tx, &hypotheses[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return types.NewTransient("ApplyTurn", err)
	}

	logging.StoreDebug("ApplyTurn committed: case=%s version=%d requests=%d provided=%d hypotheses=%d",
		c.ID, c.Version, len(requests), len(provided), len(hypotheses))
	return nil
}
