package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"gumshoe/internal/types"
)

// =============================================================================
// EVIDENCE ROWS (requests are upserted; provided records are append-only)
// =============================================================================

func upsertRequestTx(tx *sql.Tx, r *types.EvidenceRequest) error {
	guidance, err := json.Marshal(r.Guidance)
	if err != nil {
		return types.NewValidation("evidence_request.guidance", err.Error())
	}
	_, err = tx.Exec(
		`INSERT INTO evidence_requests
		 (id, case_id, label, category, status, critical, completeness, hypothesis_id, guidance, created_turn, updated_turn)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 status = excluded.status,
		 critical = excluded.critical,
		 completeness = excluded.completeness,
		 hypothesis_id = excluded.hypothesis_id,
		 updated_turn = excluded.updated_turn`,
		r.ID, r.CaseID, r.Label, string(r.Category), string(r.Status), r.Critical,
		r.Completeness, r.HypothesisID, string(guidance), r.CreatedTurn, r.UpdatedTurn,
	)
	if err != nil {
		return types.NewTransient("SaveEvidenceRequest", err)
	}
	return nil
}

func insertProvidedTx(tx *sql.Tx, e *types.EvidenceProvided) error {
	addressed, err := json.Marshal(e.AddressedRequestIDs)
	if err != nil {
		return types.NewValidation("evidence_provided.addressed_ids", err.Error())
	}
	findings, err := json.Marshal(e.KeyFindings)
	if err != nil {
		return types.NewValidation("evidence_provided.key_findings", err.Error())
	}
	var attachment []byte
	if e.Attachment != nil {
		attachment, err = json.Marshal(e.Attachment)
		if err != nil {
			return types.NewValidation("evidence_provided.attachment", err.Error())
		}
	}

	// INSERT OR IGNORE keeps the record append-only and replays idempotent.
	_, err = tx.Exec(
		`INSERT OR IGNORE INTO evidence_provided
		 (id, case_id, turn, form, raw_content, attachment, addressed_ids, verdict, relation, intent, category, key_findings, temporal_marker, has_temporal_marker, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CaseID, e.Turn, string(e.Form), e.RawContent, nullable(attachment),
		string(addressed), string(e.Verdict), string(e.Relation), string(e.Intent),
		string(e.Category), string(findings), e.TemporalMarker, e.HasTemporalMarker, e.Timestamp,
	)
	if err != nil {
		return types.NewTransient("SaveEvidenceProvided", err)
	}
	return nil
}

func nullable(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// SaveEvidenceRequest upserts one request outside a turn transaction.
func (s *LocalStore) SaveEvidenceRequest(r *types.EvidenceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return types.NewTransient("SaveEvidenceRequest", err)
	}
	defer tx.Rollback()
	if err := upsertRequestTx(tx, r); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return types.NewTransient("SaveEvidenceRequest", err)
	}
	return nil
}

// SaveEvidenceProvided appends one provided record outside a turn transaction.
func (s *LocalStore) SaveEvidenceProvided(e *types.EvidenceProvided) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return types.NewTransient("SaveEvidenceProvided", err)
	}
	defer tx.Rollback()
	if err := insertProvidedTx(tx, e); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return types.NewTransient("SaveEvidenceProvided", err)
	}
	return nil
}

// EvidenceRequests loads all requests for a case.
func (s *LocalStore) EvidenceRequests(caseID string) ([]types.EvidenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, case_id, label, category, status, critical, completeness, COALESCE(hypothesis_id, ''), guidance, created_turn, updated_turn
		 FROM evidence_requests WHERE case_id = ? ORDER BY created_turn, id`, caseID)
	if err != nil {
		return nil, types.NewTransient("EvidenceRequests", err)
	}
	defer rows.Close()

	var requests []types.EvidenceRequest
	for rows.Next() {
		var r types.EvidenceRequest
		var category, status, guidance string
		if err := rows.Scan(&r.ID, &r.CaseID, &r.Label, &category, &status, &r.Critical,
			&r.Completeness, &r.HypothesisID, &guidance, &r.CreatedTurn, &r.UpdatedTurn); err != nil {
			continue
		}
		r.Category = types.ParseEvidenceCategory(category)
		r.Status = types.ParseRequestStatus(status)
		r.Completeness = types.ClampUnit(r.Completeness)
		_ = json.Unmarshal([]byte(guidance), &r.Guidance)
		requests = append(requests, r)
	}
	return requests, nil
}

// EvidenceSince returns provided records with turn strictly greater than the
// given turn, in turn order.
func (s *LocalStore) EvidenceSince(caseID string, turn int) ([]types.EvidenceProvided, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, case_id, turn, form, COALESCE(raw_content, ''), attachment, addressed_ids, verdict, relation, intent, category, key_findings, COALESCE(temporal_marker, ''), has_temporal_marker, created_at
		 FROM evidence_provided WHERE case_id = ? AND turn > ? ORDER BY turn, created_at`, caseID, turn)
	if err != nil {
		return nil, types.NewTransient("EvidenceSince", err)
	}
	defer rows.Close()

	var records []types.EvidenceProvided
	for rows.Next() {
		e, err := scanProvided(rows)
		if err != nil {
			continue
		}
		records = append(records, *e)
	}
	return records, nil
}

// EvidenceProvided loads the full append-only record for a case.
func (s *LocalStore) EvidenceProvided(caseID string) ([]types.EvidenceProvided, error) {
	return s.EvidenceSince(caseID, -1)
}

func scanProvided(rows *sql.Rows) (*types.EvidenceProvided, error) {
	var e types.EvidenceProvided
	var form, verdict, relation, intent, category string
	var attachment sql.NullString
	var addressed, findings string
	var created time.Time
	if err := rows.Scan(&e.ID, &e.CaseID, &e.Turn, &form, &e.RawContent, &attachment,
		&addressed, &verdict, &relation, &intent, &category, &findings,
		&e.TemporalMarker, &e.HasTemporalMarker, &created); err != nil {
		return nil, err
	}
	e.Form = types.ParseEvidenceForm(form)
	e.Verdict = types.ParseCompletenessVerdict(verdict)
	e.Relation = types.ParseEvidenceRelation(relation)
	e.Intent = types.ParseSubmitterIntent(intent)
	e.Category = types.ParseEvidenceCategory(category)
	e.Timestamp = created
	_ = json.Unmarshal([]byte(addressed), &e.AddressedRequestIDs)
	_ = json.Unmarshal([]byte(findings), &e.KeyFindings)
	if attachment.Valid && attachment.String != "" {
		var att types.Attachment
		if err := json.Unmarshal([]byte(attachment.String), &att); err == nil {
			e.Attachment = &att
		}
	}
	return &e, nil
}
