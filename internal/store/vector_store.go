package store

import (
	"encoding/json"
	"math"
	"sort"

	"gumshoe/internal/logging"
	"gumshoe/internal/types"
)

// =============================================================================
// PER-CASE DOCUMENT VECTORS
// =============================================================================
//
// Evidence documents are embedded and stored per case so the controller can
// surface similar prior material. When the sqlite-vec extension is compiled
// in (build tag sqlite_vec) the probe in local.go detects it; otherwise
// search falls back to an in-process cosine scan, which is fine at per-case
// scale.

// StoreCaseVector upserts one embedded document for a case. source_id keys
// the document so re-indexing the same evidence is idempotent.
func (s *LocalStore) StoreCaseVector(caseID, sourceID, content string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	emb, err := json.Marshal(embedding)
	if err != nil {
		return types.NewValidation("case_vector.embedding", err.Error())
	}

	_, err = s.db.Exec(
		`INSERT INTO case_vectors (case_id, source_id, content, embedding)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(case_id, source_id) DO UPDATE SET
		 content = excluded.content,
		 embedding = excluded.embedding`,
		caseID, sourceID, content, string(emb),
	)
	if err != nil {
		return types.NewTransient("StoreCaseVector", err)
	}
	logging.RetrievalDebug("Stored vector for case=%s source=%s dim=%d", caseID, sourceID, len(embedding))
	return nil
}

// SearchCaseVectors returns the k most similar stored documents for the case.
func (s *LocalStore) SearchCaseVectors(caseID string, query []float32, k int) ([]types.SearchHit, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "SearchCaseVectors")
	defer timer.Stop()

	if k <= 0 {
		k = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT source_id, content, embedding FROM case_vectors WHERE case_id = ?`, caseID)
	if err != nil {
		return nil, types.NewTransient("SearchCaseVectors", err)
	}
	defer rows.Close()

	var hits []types.SearchHit
	for rows.Next() {
		var sourceID, content, embJSON string
		if err := rows.Scan(&sourceID, &content, &embJSON); err != nil {
			continue
		}
		var emb []float32
		if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
			continue
		}
		score := cosineSimilarity32(query, emb)
		hits = append(hits, types.SearchHit{SourceID: sourceID, Content: content, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	logging.RetrievalDebug("SearchCaseVectors: case=%s returned %d hits", caseID, len(hits))
	return hits, nil
}

// HasVectorExtension reports whether the sqlite-vec probe succeeded.
func (s *LocalStore) HasVectorExtension() bool {
	return s.vectorExt
}

// cosineSimilarity32 computes cosine similarity between two vectors.
// Mismatched or zero vectors score 0.
func cosineSimilarity32(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		af := float64(a[i])
		bf := float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
