package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"gumshoe/internal/types"
)

// =============================================================================
// HYPOTHESIS ROWS
// =============================================================================

func upsertHypothesisTx(tx *sql.Tx, h *types.Hypothesis) error {
	evidenceIDs, err := json.Marshal(h.EvidenceIDs)
	if err != nil {
		return types.NewValidation("hypothesis.evidence_ids", err.Error())
	}
	_, err = tx.Exec(
		`INSERT INTO hypotheses
		 (id, case_id, statement, category, likelihood, status, strategy, evidence_ids, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 likelihood = excluded.likelihood,
		 status = excluded.status,
		 strategy = excluded.strategy,
		 evidence_ids = excluded.evidence_ids,
		 updated_at = excluded.updated_at`,
		h.ID, h.CaseID, h.Statement, string(h.Category), h.Likelihood, string(h.Status),
		h.ValidationStrategy, string(evidenceIDs), h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return types.NewTransient("SaveHypothesis", err)
	}
	return nil
}

// SaveHypothesis upserts one hypothesis outside a turn transaction.
func (s *LocalStore) SaveHypothesis(h *types.Hypothesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return types.NewTransient("SaveHypothesis", err)
	}
	defer tx.Rollback()
	if err := upsertHypothesisTx(tx, h); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return types.NewTransient("SaveHypothesis", err)
	}
	return nil
}

// Hypotheses loads all hypotheses for a case, highest likelihood first.
func (s *LocalStore) Hypotheses(caseID string) ([]types.Hypothesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, case_id, statement, category, likelihood, status, COALESCE(strategy, ''), evidence_ids, created_at, updated_at
		 FROM hypotheses WHERE case_id = ? ORDER BY likelihood DESC, created_at`, caseID)
	if err != nil {
		return nil, types.NewTransient("Hypotheses", err)
	}
	defer rows.Close()

	var hypotheses []types.Hypothesis
	for rows.Next() {
		var h types.Hypothesis
		var category, status, evidenceIDs string
		var created, updated time.Time
		if err := rows.Scan(&h.ID, &h.CaseID, &h.Statement, &category, &h.Likelihood,
			&status, &h.ValidationStrategy, &evidenceIDs, &created, &updated); err != nil {
			continue
		}
		h.Category = types.ParseEvidenceCategory(category)
		h.Status = types.ParseHypothesisStatus(status)
		h.Likelihood = types.ClampUnit(h.Likelihood)
		h.CreatedAt = created
		h.UpdatedAt = updated
		_ = json.Unmarshal([]byte(evidenceIDs), &h.EvidenceIDs)
		hypotheses = append(hypotheses, h)
	}
	return hypotheses, nil
}
